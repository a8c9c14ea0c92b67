package main

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/query"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
	formatArrow = "arrow"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatCSV, formatArrow:
		return nil
	}
	return jdbcerrors.Newf(jdbcerrors.KindValidation, "unknown output format %q", format).
		WithDetail("formats", []string{formatTable, formatJSON, formatCSV, formatArrow})
}

// recordSink writes a stream of Arrow records in one output format.
type recordSink interface {
	begin(schema *arrow.Schema) error
	write(rec arrow.Record) error
	end() error
}

func newRecordSink(w io.Writer, format string) (recordSink, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	switch format {
	case formatJSON:
		return &jsonSink{w: w}, nil
	case formatCSV:
		return &csvSink{w: csv.NewWriter(w)}, nil
	case formatArrow:
		return &arrowSink{w: w}, nil
	default:
		return &tableSink{w: w}, nil
	}
}

// writeTable renders a whole result.
func writeTable(w io.Writer, format string, t *query.Table) error {
	sink, err := newRecordSink(w, format)
	if err != nil {
		return err
	}
	if err := sink.begin(t.Schema()); err != nil {
		return err
	}
	for _, rec := range t.Records() {
		if err := sink.write(rec); err != nil {
			return err
		}
	}
	return sink.end()
}

// writeBatches renders a batched read as it arrives.
func writeBatches(w io.Writer, format string, it *query.BatchIterator) error {
	sink, err := newRecordSink(w, format)
	if err != nil {
		return err
	}
	if err := sink.begin(it.Schema()); err != nil {
		return err
	}
	for it.Next() {
		if err := sink.write(it.Batch()); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return sink.end()
}

// formatCell renders a cell for text outputs.
func formatCell(v interface{}, null string) string {
	switch x := v.(type) {
	case nil:
		return null
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []byte:
		return `\x` + hex.EncodeToString(x)
	default:
		return fmt.Sprint(x)
	}
}

func columnNames(schema *arrow.Schema) []string {
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}

type tableSink struct {
	w     io.Writer
	table *tablewriter.Table
	rows  int
}

func (s *tableSink) begin(schema *arrow.Schema) error {
	s.table = newTableWriter(s.w, columnNames(schema))
	return nil
}

func (s *tableSink) write(rec arrow.Record) error {
	for i := 0; i < int(rec.NumRows()); i++ {
		row := make([]string, rec.NumCols())
		for c := range row {
			row[c] = formatCell(query.CellValue(rec.Column(c), i), "NULL")
		}
		s.table.Append(row)
		s.rows++
	}
	return nil
}

func (s *tableSink) end() error {
	s.table.Render()
	_, err := fmt.Fprintf(s.w, "(%d rows)\n", s.rows)
	return err
}

type csvSink struct {
	w *csv.Writer
}

func (s *csvSink) begin(schema *arrow.Schema) error {
	return s.w.Write(columnNames(schema))
}

func (s *csvSink) write(rec arrow.Record) error {
	for i := 0; i < int(rec.NumRows()); i++ {
		row := make([]string, rec.NumCols())
		for c := range row {
			row[c] = formatCell(query.CellValue(rec.Column(c), i), "")
		}
		if err := s.w.Write(row); err != nil {
			return err
		}
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *csvSink) end() error {
	s.w.Flush()
	return s.w.Error()
}

// jsonSink writes an array of objects whose keys keep column order.
type jsonSink struct {
	w     io.Writer
	names [][]byte
	rows  int
}

func (s *jsonSink) begin(schema *arrow.Schema) error {
	s.names = make([][]byte, schema.NumFields())
	for i, f := range schema.Fields() {
		b, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		s.names[i] = b
	}
	_, err := io.WriteString(s.w, "[")
	return err
}

func (s *jsonSink) write(rec arrow.Record) error {
	buf := make([]byte, 0, 256)
	for i := 0; i < int(rec.NumRows()); i++ {
		buf = buf[:0]
		if s.rows > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, "\n  {"...)
		for c := range s.names {
			if c > 0 {
				buf = append(buf, ',')
			}
			value, err := json.Marshal(query.CellValue(rec.Column(c), i))
			if err != nil {
				return jdbcerrors.Wrap(err, jdbcerrors.KindData, "cannot encode value").
					WithDetail("column", rec.ColumnName(c))
			}
			buf = append(buf, s.names[c]...)
			buf = append(buf, ':')
			buf = append(buf, value...)
		}
		buf = append(buf, '}')
		if _, err := s.w.Write(buf); err != nil {
			return err
		}
		s.rows++
	}
	return nil
}

func (s *jsonSink) end() error {
	if s.rows == 0 {
		_, err := io.WriteString(s.w, "]\n")
		return err
	}
	_, err := io.WriteString(s.w, "\n]\n")
	return err
}

// arrowSink writes the Arrow IPC stream format.
type arrowSink struct {
	w  io.Writer
	ww *ipc.Writer
}

func (s *arrowSink) begin(schema *arrow.Schema) error {
	s.ww = ipc.NewWriter(s.w, ipc.WithSchema(schema))
	return nil
}

func (s *arrowSink) write(rec arrow.Record) error {
	return s.ww.Write(rec)
}

func (s *arrowSink) end() error {
	return s.ww.Close()
}

func newTableWriter(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

// writeList renders a single column of names.
func writeList(w io.Writer, format, header string, items []string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, items)
	case formatCSV:
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{header})
		for _, item := range items {
			_ = cw.Write([]string{item})
		}
		cw.Flush()
		return cw.Error()
	case formatTable:
		table := newTableWriter(w, []string{header})
		for _, item := range items {
			table.Append([]string{item})
		}
		table.Render()
		return nil
	default:
		return unsupportedFormat(format)
	}
}

// writeFields renders v as JSON, or its key/value pairs as a table or CSV.
func writeFields(w io.Writer, format string, v interface{}, fields [][2]string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, v)
	case formatCSV:
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"field", "value"})
		for _, f := range fields {
			_ = cw.Write(f[:])
		}
		cw.Flush()
		return cw.Error()
	case formatTable:
		table := newTableWriter(w, []string{"Field", "Value"})
		for _, f := range fields {
			table.Append(f[:])
		}
		table.Render()
		return nil
	default:
		return unsupportedFormat(format)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func unsupportedFormat(format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	return jdbcerrors.Newf(jdbcerrors.KindValidation, "output format %q is only available for tabular results", format)
}
