package query

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Table is a query result: an Arrow schema and its record chunks in read
// order. A Table owns its records; call Release when done.
type Table struct {
	schema  *arrow.Schema
	records []arrow.Record
	rows    int64
}

// NewTable takes ownership of records, which must all match schema.
func NewTable(schema *arrow.Schema, records []arrow.Record) *Table {
	t := &Table{schema: schema, records: records}
	for _, rec := range records {
		t.rows += rec.NumRows()
	}
	return t
}

// Schema returns the Arrow schema.
func (t *Table) Schema() *arrow.Schema {
	return t.schema
}

// NumRows returns the total row count across chunks.
func (t *Table) NumRows() int64 {
	return t.rows
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	return len(t.schema.Fields())
}

// ColumnNames returns column names in result order.
func (t *Table) ColumnNames() []string {
	fields := t.schema.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Records returns the chunks. They stay owned by the table.
func (t *Table) Records() []arrow.Record {
	return t.records
}

// Value returns a single cell as a Go value: int64, float64, bool, string,
// []byte, time.Time, or nil for SQL NULL.
func (t *Table) Value(row int64, col int) (interface{}, error) {
	if col < 0 || col >= t.NumCols() || row < 0 || row >= t.rows {
		return nil, jdbcerrors.Newf(jdbcerrors.KindValidation, "cell (%d, %d) out of range", row, col).
			WithDetail("rows", t.rows).
			WithDetail("cols", t.NumCols())
	}
	for _, rec := range t.records {
		if row < rec.NumRows() {
			return CellValue(rec.Column(col), int(row)), nil
		}
		row -= rec.NumRows()
	}
	return nil, jdbcerrors.New(jdbcerrors.KindData, "row index inconsistent with records")
}

// ArrowTable assembles the chunks into an arrow.Table. The caller releases it.
func (t *Table) ArrowTable() arrow.Table {
	return array.NewTableFromRecords(t.schema, t.records)
}

// Release frees the underlying buffers.
func (t *Table) Release() {
	for _, rec := range t.records {
		rec.Release()
	}
	t.records = nil
	t.rows = 0
}

// CellValue returns row i of col the way Table.Value does.
func CellValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}

	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int64:
		return c.Value(i)
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return c.Value(i)
	case *array.Binary:
		return c.Value(i)
	case *array.Timestamp:
		unit := col.DataType().(*arrow.TimestampType).Unit
		return c.Value(i).ToTime(unit)
	default:
		return c.ValueStr(i)
	}
}
