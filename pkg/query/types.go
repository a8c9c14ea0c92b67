package query

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// timestampType is used for every date and time column.
var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// ColumnInfo is the subset of *sql.ColumnType the type mapping needs.
type ColumnInfo interface {
	Name() string
	DatabaseTypeName() string
	ScanType() reflect.Type
	DecimalSize() (precision, scale int64, ok bool)
	Nullable() (nullable, ok bool)
}

var _ ColumnInfo = (*sql.ColumnType)(nil)

// arrowType maps a result column to its Arrow type: integers to int64,
// floating and fixed-point numbers to float64, booleans to bool, dates and
// times to timestamp[us, UTC], binary to binary and everything else to utf8.
func arrowType(col ColumnInfo) arrow.DataType {
	name := strings.ToUpper(strings.TrimSpace(col.DatabaseTypeName()))
	// MySQL reports "UNSIGNED BIGINT", pgx reports "_INT4" for arrays
	name = strings.TrimPrefix(name, "UNSIGNED ")
	if strings.HasPrefix(name, "_") {
		return arrow.BinaryTypes.String
	}

	switch name {
	case "INT", "INTEGER", "INT2", "INT4", "INT8", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT",
		"SERIAL", "BIGSERIAL", "SMALLSERIAL", "YEAR", "PLS_INTEGER", "BINARY_INTEGER":
		return arrow.PrimitiveTypes.Int64
	case "DECIMAL", "NUMERIC", "NUMBER", "MONEY", "SMALLMONEY":
		if precision, scale, ok := col.DecimalSize(); ok && scale == 0 && precision > 0 && precision <= 18 {
			return arrow.PrimitiveTypes.Int64
		}
		return arrow.PrimitiveTypes.Float64
	case "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION", "BINARY_FLOAT", "BINARY_DOUBLE":
		return arrow.PrimitiveTypes.Float64
	case "BOOL", "BOOLEAN", "BIT":
		return arrow.FixedWidthTypes.Boolean
	case "DATE", "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET",
		"TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITH LOCAL TIME ZONE":
		return timestampType
	case "BYTEA", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "IMAGE", "RAW", "LONG RAW":
		return arrow.BinaryTypes.Binary
	case "":
		// drivers that report no name fall through to the scan type
	default:
		if strings.HasPrefix(name, "TIMESTAMP") {
			return timestampType
		}
		return arrow.BinaryTypes.String
	}

	return scanTypeToArrow(col.ScanType())
}

func scanTypeToArrow(t reflect.Type) arrow.DataType {
	if t == nil {
		return arrow.BinaryTypes.String
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case reflect.TypeOf(time.Time{}), reflect.TypeOf(sql.NullTime{}):
		return timestampType
	case reflect.TypeOf(sql.NullInt64{}), reflect.TypeOf(sql.NullInt32{}), reflect.TypeOf(sql.NullInt16{}):
		return arrow.PrimitiveTypes.Int64
	case reflect.TypeOf(sql.NullFloat64{}):
		return arrow.PrimitiveTypes.Float64
	case reflect.TypeOf(sql.NullBool{}):
		return arrow.FixedWidthTypes.Boolean
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return arrow.PrimitiveTypes.Int64
	case reflect.Float32, reflect.Float64:
		return arrow.PrimitiveTypes.Float64
	case reflect.Bool:
		return arrow.FixedWidthTypes.Boolean
	default:
		// sql.RawBytes, []byte and string all render as text
		return arrow.BinaryTypes.String
	}
}

// schemaFor builds the Arrow schema of a result set. Column order and names
// are kept exactly.
func schemaFor(cols []ColumnInfo) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		nullable, ok := col.Nullable()
		fields[i] = arrow.Field{
			Name:     col.Name(),
			Type:     arrowType(col),
			Nullable: nullable || !ok,
		}
	}
	return arrow.NewSchema(fields, nil)
}

func columnInfos(types []*sql.ColumnType) []ColumnInfo {
	out := make([]ColumnInfo, len(types))
	for i, t := range types {
		out[i] = t
	}
	return out
}

// recordBuilder converts scanned rows into Arrow records.
type recordBuilder struct {
	schema  *arrow.Schema
	builder *array.RecordBuilder
	values  []interface{}
	ptrs    []interface{}
	rows    int
}

func newRecordBuilder(mem memory.Allocator, schema *arrow.Schema) *recordBuilder {
	n := len(schema.Fields())
	rb := &recordBuilder{
		schema:  schema,
		builder: array.NewRecordBuilder(mem, schema),
		values:  make([]interface{}, n),
		ptrs:    make([]interface{}, n),
	}
	for i := range rb.values {
		rb.ptrs[i] = &rb.values[i]
	}
	return rb
}

// scan reads the current row of rows and appends it.
func (rb *recordBuilder) scan(rows *sql.Rows) error {
	if err := rows.Scan(rb.ptrs...); err != nil {
		return err
	}
	return rb.append(rb.values)
}

// append adds one row. SQL NULL becomes an Arrow null.
func (rb *recordBuilder) append(row []interface{}) error {
	for i, v := range row {
		if err := appendValue(rb.builder.Field(i), v); err != nil {
			field := rb.schema.Field(i)
			return jdbcerrors.Wrap(err, jdbcerrors.KindData, "cannot convert value").
				WithDetail("column", field.Name).
				WithDetail("arrow_type", field.Type.String()).
				WithDetail("row", rb.rows)
		}
	}
	rb.rows++
	return nil
}

// newRecord returns the rows appended so far and resets the builder.
func (rb *recordBuilder) newRecord() arrow.Record {
	rb.rows = 0
	return rb.builder.NewRecord()
}

func (rb *recordBuilder) release() {
	rb.builder.Release()
}

func appendValue(builder array.Builder, value interface{}) error {
	if value == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.Int64Builder:
		v, err := toInt64(value)
		if err != nil {
			return err
		}
		b.Append(v)
	case *array.Float64Builder:
		v, err := toFloat64(value)
		if err != nil {
			return err
		}
		b.Append(v)
	case *array.BooleanBuilder:
		v, err := toBool(value)
		if err != nil {
			return err
		}
		b.Append(v)
	case *array.TimestampBuilder:
		v, err := toTime(value)
		if err != nil {
			return err
		}
		b.Append(arrow.Timestamp(v.UTC().UnixMicro()))
	case *array.BinaryBuilder:
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.AppendString(v)
		default:
			b.AppendString(fmt.Sprint(v))
		}
	case *array.StringBuilder:
		b.Append(toString(value))
	default:
		return fmt.Errorf("unsupported builder %T", builder)
	}
	return nil
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > 1<<63-1 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case fmt.Stringer:
		return strconv.ParseInt(v.String(), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", value)
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case fmt.Stringer:
		return strconv.ParseFloat(v.String(), 64)
	default:
		i, err := toInt64(value)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to float64", value)
		}
		return float64(i), nil
	}
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case []byte:
		// MySQL BIT(1) arrives as a single raw byte
		if len(v) == 1 && (v[0] == 0 || v[0] == 1) {
			return v[0] == 1, nil
		}
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	default:
		i, err := toInt64(value)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to bool", value)
		}
		return i != 0, nil
	}
}

// text layouts drivers use when they return dates as strings
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func toTime(value interface{}) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", value)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", s)
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
