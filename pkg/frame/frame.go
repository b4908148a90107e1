// Package frame provides the in-memory table type that spine and event
// data are loaded into, along with cell coercion and timestamp parsing
// helpers shared by the feature engine.
package frame

import (
	"fmt"
	"strconv"
	"time"

	sferrors "github.com/safefeat/safefeat/internal/errors"
)

// Table is a simple row-oriented table: a list of column names and rows of
// cells. Cells hold string, int64, float64, bool, time.Time, or nil.
// Tables handed to the feature engine are never mutated; operations that
// need to change data work on copies.
type Table struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// New creates an empty table with the given column names.
func New(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnIndex returns the index of the named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table contains the named column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// AppendRow adds a row to the table. The row length must match the number
// of columns.
func (t *Table) AppendRow(row ...interface{}) error {
	if len(row) != len(t.Columns) {
		return sferrors.NewSchemaError(sferrors.CodeLengthMismatch,
			fmt.Sprintf("row has %d cells, table has %d columns", len(row), len(t.Columns)))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Copy returns a deep copy of the table's structure. Cell values are
// shared; every cell type the engine produces is immutable.
func (t *Table) Copy() *Table {
	cp := &Table{
		Columns: make([]string, len(t.Columns)),
		Rows:    make([][]interface{}, len(t.Rows)),
	}
	copy(cp.Columns, t.Columns)
	for i, row := range t.Rows {
		r := make([]interface{}, len(row))
		copy(r, row)
		cp.Rows[i] = r
	}
	return cp
}

// AppendColumn adds a named column with one value per existing row.
func (t *Table) AppendColumn(name string, values []interface{}) error {
	if len(values) != len(t.Rows) {
		return sferrors.NewSchemaError(sferrors.CodeLengthMismatch,
			fmt.Sprintf("column %q has %d values, table has %d rows", name, len(values), len(t.Rows)))
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], values[i])
	}
	return nil
}

// Cell returns the value at (row, col index).
func (t *Table) Cell(row, col int) interface{} {
	return t.Rows[row][col]
}

// FilterEqual returns a new table containing only rows where the named
// column equals value. Numeric cells compare by value across int64 and
// float64. The source table is not modified.
func (t *Table) FilterEqual(column string, value interface{}) (*Table, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, sferrors.NewSchemaError(sferrors.CodeMissingColumn,
			fmt.Sprintf("column %q not found", column))
	}
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, row := range t.Rows {
		if ValuesEqual(row[idx], value) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// ValuesEqual compares two cell values, treating numerically equal int64
// and float64 cells as equal.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := ToFloat64(a)
	fb, bNum := ToFloat64(b)
	if aNum && bNum {
		return fa == fb
	}
	return a == b
}

// ToFloat64 converts a cell value to float64 for numeric aggregation.
func ToFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint:
		return float64(val), true
	}
	return 0, false
}

// CanonicalString produces a deterministic string encoding of a cell value,
// used for join keys and distinct-value hashing. Numeric cells that are
// whole numbers encode identically whether stored as int64 or float64.
func CanonicalString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<NULL>"
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case bool:
		if val {
			return "true"
		}
		return "false"
	}
	if f, ok := ToFloat64(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
