package sqldb

import (
	"math"
	"reflect"
	"sort"
)

// Batch is the input of the batch operations. It is one of Record, Records or Frame.
type Batch interface {
	// normalize returns the column set and the rows projected onto it.
	normalize() ([]string, []Record)
	shape() string
}

// Record is a single row keyed by column name.
type Record map[string]any

// Records is a sequence of rows. The column set is taken from the first row.
type Records []Record

// Frame is tabular data: named columns and positional rows.
// It is accepted as batch input and returned by FindDuplicateRows.
type Frame struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (r Record) shape() string  { return "record" }
func (r Records) shape() string { return "records" }
func (f Frame) shape() string   { return "frame" }

func (r Record) normalize() ([]string, []Record) {
	if len(r) == 0 {
		return nil, nil
	}
	cols := sortedKeys(r)
	return cols, []Record{project(r, cols)}
}

// normalize takes the columns of the first record. Later records are not checked
// against it: missing columns bind NULL and extra keys are dropped.
func (r Records) normalize() ([]string, []Record) {
	if len(r) == 0 {
		return nil, nil
	}
	cols := sortedKeys(r[0])
	rows := make([]Record, len(r))
	for i, rec := range r {
		rows[i] = project(rec, cols)
	}
	return cols, rows
}

func (f Frame) normalize() ([]string, []Record) {
	if len(f.Rows) == 0 {
		return nil, nil
	}
	cols := append([]string(nil), f.Columns...)
	rows := make([]Record, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(Record, len(cols))
		for j, col := range cols {
			var v any
			if j < len(row) {
				v = row[j]
			}
			rec[col] = normalizeValue(v)
		}
		rows[i] = rec
	}
	return cols, rows
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Records converts the frame into keyed rows.
func (f *Frame) Records() Records {
	if f == nil {
		return nil
	}
	out := make(Records, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(Record, len(f.Columns))
		for j, col := range f.Columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

func shapeOf(b Batch) string {
	if b == nil {
		return "nil"
	}
	return b.shape()
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func project(r Record, cols []string) Record {
	out := make(Record, len(cols))
	for _, c := range cols {
		out[c] = normalizeValue(r[c])
	}
	return out
}

// normalizeValue maps null-like values (nil, nil pointers, NaN) to SQL NULL.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(t) {
			return nil
		}
		return t
	case float32:
		if math.IsNaN(float64(t)) {
			return nil
		}
		return t
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	return v
}

func pageCount(rows, size int) int {
	if rows == 0 {
		return 0
	}
	return (rows + size - 1) / size
}

func pageBounds(page, size, total int) (int, int) {
	start := page * size
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}
