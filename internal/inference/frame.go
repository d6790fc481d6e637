// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import (
	"fmt"
	"sort"
	"strconv"
)

// Value is a single cell of a Frame: a number or a text value awaiting coercion.
type Value struct {
	Num    float64
	Str    string
	IsText bool
}

// Num returns a numeric Value.
func Num(f float64) Value { return Value{Num: f} }

// Text returns a text Value.
func Text(s string) Value { return Value{Str: s, IsText: true} }

// ValueOf converts a decoded record field into a Value.
func ValueOf(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case float64:
		return Num(t)
	case float32:
		return Num(float64(t))
	case int:
		return Num(float64(t))
	case int64:
		return Num(float64(t))
	case int32:
		return Num(float64(t))
	case uint16:
		return Num(float64(t))
	case uint32:
		return Num(float64(t))
	case uint64:
		return Num(float64(t))
	case bool:
		if t {
			return Num(1)
		}
		return Num(0)
	case string:
		return Text(t)
	case fmt.Stringer:
		return Text(t.String())
	default:
		return Text(fmt.Sprint(t))
	}
}

// String renders the value for descriptions and logs.
func (v Value) String() string {
	if v.IsText {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// Frame is a rectangular batch of records with named columns.
type Frame struct {
	Columns []string
	Rows    [][]Value
	index   map[string]int
}

// NewFrame creates an empty frame with the given columns.
func NewFrame(columns []string) *Frame {
	f := &Frame{Columns: append([]string(nil), columns...)}
	f.reindex()
	return f
}

// FrameFromMaps builds a frame from record field maps. Columns are the sorted
// union of all keys; a row lacking a column holds a zero number.
func FrameFromMaps(records []map[string]any) *Frame {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	f := NewFrame(cols)
	for _, r := range records {
		row := make([]Value, len(cols))
		for i, c := range cols {
			if v, ok := r[c]; ok {
				row[i] = ValueOf(v)
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		f.index[c] = i
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Index returns the position of a column.
func (f *Frame) Index(column string) (int, bool) {
	if f.index == nil || len(f.index) != len(f.Columns) {
		f.reindex()
	}
	i, ok := f.index[column]
	return i, ok
}

// Has reports whether the frame has the column.
func (f *Frame) Has(column string) bool {
	_, ok := f.Index(column)
	return ok
}

// Get returns the value of column in row, and false when the column is absent.
func (f *Frame) Get(row int, column string) (Value, bool) {
	i, ok := f.Index(column)
	if !ok || row < 0 || row >= len(f.Rows) {
		return Value{}, false
	}
	return f.Rows[row][i], true
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.Columns)
	out.Rows = make([][]Value, len(f.Rows))
	for i, r := range f.Rows {
		out.Rows[i] = append([]Value(nil), r...)
	}
	return out
}

// SetColumn replaces or appends a column with the given values.
func (f *Frame) SetColumn(column string, values []Value) {
	if i, ok := f.Index(column); ok {
		for r := range f.Rows {
			f.Rows[r][i] = values[r]
		}
		return
	}
	f.Columns = append(f.Columns, column)
	f.index[column] = len(f.Columns) - 1
	for r := range f.Rows {
		f.Rows[r] = append(f.Rows[r], values[r])
	}
}

// DropColumns removes the named columns, ignoring ones that are absent.
func (f *Frame) DropColumns(columns ...string) {
	drop := make(map[int]bool)
	for _, c := range columns {
		if i, ok := f.Index(c); ok {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return
	}
	keep := make([]string, 0, len(f.Columns)-len(drop))
	for i, c := range f.Columns {
		if !drop[i] {
			keep = append(keep, c)
		}
	}
	for r, row := range f.Rows {
		nr := make([]Value, 0, len(keep))
		for i, v := range row {
			if !drop[i] {
				nr = append(nr, v)
			}
		}
		f.Rows[r] = nr
	}
	f.Columns = keep
	f.reindex()
}

// Select returns a frame holding only the given rows.
func (f *Frame) Select(rows []int) *Frame {
	out := NewFrame(f.Columns)
	for _, r := range rows {
		if r >= 0 && r < len(f.Rows) {
			out.Rows = append(out.Rows, append([]Value(nil), f.Rows[r]...))
		}
	}
	return out
}

// Align projects a numeric matrix with columns from onto the columns to.
// Columns missing in from are filled with zero.
func Align(matrix [][]float64, from, to []string) [][]float64 {
	pos := make(map[string]int, len(from))
	for i, c := range from {
		pos[c] = i
	}
	out := make([][]float64, len(matrix))
	for r, row := range matrix {
		nr := make([]float64, len(to))
		for j, c := range to {
			if i, ok := pos[c]; ok && i < len(row) {
				nr[j] = row[i]
			}
		}
		out[r] = nr
	}
	return out
}
