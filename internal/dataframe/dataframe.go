// Package dataframe implements the tabular value type available to
// sandboxed code. It is a deliberately small column-named row store with
// CSV/JSON conversion, enough for the analysis workloads the sandbox
// serves, not a general dataframe library.
package dataframe

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DataFrame is an ordered set of named columns over a list of rows.
// Cell values are string, float64, bool or nil. Methods are exported with
// JS-friendly semantics: they are bound into the interpreter via the
// runtime's field name mapper, so Head becomes head, ToCSV becomes toCSV.
type DataFrame struct {
	cols []string
	rows [][]any
}

// New builds a DataFrame from a column list and row data. Rows shorter than
// the column list are padded with nil; longer rows are an error.
func New(cols []string, rows [][]any) (*DataFrame, error) {
	out := make([][]any, 0, len(rows))
	for i, r := range rows {
		if len(r) > len(cols) {
			return nil, fmt.Errorf("dataframe: row %d has %d values for %d columns", i, len(r), len(cols))
		}
		row := make([]any, len(cols))
		copy(row, r)
		out = append(out, row)
	}
	return &DataFrame{cols: append([]string(nil), cols...), rows: out}, nil
}

// FromCSV parses delimited text. The first record is the header; numeric
// and boolean cells are converted, everything else stays a string.
func FromCSV(data []byte) (*DataFrame, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataframe: parsing csv: %w", err)
	}
	if len(records) == 0 {
		return &DataFrame{}, nil
	}
	cols := records[0]
	rows := make([][]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]any, len(cols))
		for i := range cols {
			if i < len(rec) {
				row[i] = coerce(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return &DataFrame{cols: cols, rows: rows}, nil
}

// FromRecords builds a DataFrame from a list of maps, the shape JSON
// artifacts and sandboxed object literals arrive in. Column order is the
// sorted union of keys, so the result is deterministic.
func FromRecords(records []map[string]any) (*DataFrame, error) {
	seen := map[string]struct{}{}
	var cols []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = rec[c]
		}
		rows = append(rows, row)
	}
	return &DataFrame{cols: cols, rows: rows}, nil
}

// NumRows reports the number of data rows.
func (d *DataFrame) NumRows() int { return len(d.rows) }

// NumColumns reports the number of columns.
func (d *DataFrame) NumColumns() int { return len(d.cols) }

// Columns returns a copy of the column names in order.
func (d *DataFrame) Columns() []string {
	return append([]string(nil), d.cols...)
}

// Head returns a new DataFrame holding the first n rows.
func (d *DataFrame) Head(n int) *DataFrame {
	if n < 0 {
		n = 0
	}
	if n > len(d.rows) {
		n = len(d.rows)
	}
	return &DataFrame{cols: d.cols, rows: d.rows[:n]}
}

// Column returns the values of one column.
func (d *DataFrame) Column(name string) ([]any, error) {
	idx := -1
	for i, c := range d.cols {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("dataframe: no column %q", name)
	}
	out := make([]any, len(d.rows))
	for i, row := range d.rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Records converts the frame to a list of column-keyed maps.
func (d *DataFrame) Records() []map[string]any {
	out := make([]map[string]any, len(d.rows))
	for i, row := range d.rows {
		rec := make(map[string]any, len(d.cols))
		for j, c := range d.cols {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}

// ToCSV renders the frame as CSV text including the header row.
func (d *DataFrame) ToCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(d.cols); err != nil {
		return "", fmt.Errorf("dataframe: writing csv header: %w", err)
	}
	rec := make([]string, len(d.cols))
	for _, row := range d.rows {
		for i, v := range row {
			rec[i] = cellString(v)
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("dataframe: writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("dataframe: flushing csv: %w", err)
	}
	return buf.String(), nil
}

// ToJSON renders the frame as a JSON array of records.
func (d *DataFrame) ToJSON() (string, error) {
	b, err := json.Marshal(d.Records())
	if err != nil {
		return "", fmt.Errorf("dataframe: encoding json: %w", err)
	}
	return string(b), nil
}

// String renders an aligned text table, used for result previews.
func (d *DataFrame) String() string {
	widths := make([]int, len(d.cols))
	for i, c := range d.cols {
		widths[i] = len(c)
	}
	cells := make([][]string, len(d.rows))
	for i, row := range d.rows {
		cells[i] = make([]string, len(d.cols))
		for j, v := range row {
			s := cellString(v)
			cells[i][j] = s
			if len(s) > widths[j] {
				widths[j] = len(s)
			}
		}
	}
	var b strings.Builder
	for j, c := range d.cols {
		if j > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-*s", widths[j], c)
	}
	for _, row := range cells {
		b.WriteByte('\n')
		for j, s := range row {
			if j > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[j], s)
		}
	}
	return b.String()
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func coerce(s string) any {
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true", "True":
		return true
	case "false", "False":
		return false
	}
	return s
}
