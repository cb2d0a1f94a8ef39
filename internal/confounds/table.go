package confounds

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Table is a set of named float columns over timepoints.
type Table struct {
	columns []string
	rows    int
	// data is nil when the table has no rows or no columns.
	data *mat.Dense
}

// NewTable builds a table from row-major values. Every row must have one
// value per column.
func NewTable(columns []string, rows [][]float64) (*Table, error) {
	t := &Table{columns: slices.Clone(columns), rows: len(rows)}
	if len(rows) == 0 || len(columns) == 0 {
		return t, nil
	}
	flat := make([]float64, 0, len(rows)*len(columns))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), len(columns))
		}
		flat = append(flat, r...)
	}
	t.data = mat.NewDense(len(rows), len(columns), flat)
	return t, nil
}

// FromColumns builds a table from column vectors of equal length.
func FromColumns(columns []string, values ...[]float64) (*Table, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%d column names for %d columns", len(columns), len(values))
	}
	t := &Table{columns: slices.Clone(columns)}
	if len(values) == 0 {
		return t, nil
	}
	t.rows = len(values[0])
	if t.rows == 0 {
		return t, nil
	}
	t.data = mat.NewDense(t.rows, len(values), nil)
	for j, col := range values {
		if len(col) != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", columns[j], len(col), t.rows)
		}
		t.data.SetCol(j, col)
	}
	return t, nil
}

// Rows returns the number of timepoints.
func (t *Table) Rows() int { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// At returns one value. Like mat.Dense it panics when the index is out of
// range, which is every index of a table with no rows or no columns.
func (t *Table) At(row, col int) float64 {
	if t.data == nil {
		panic(fmt.Sprintf("confounds: index (%d, %d) out of range for empty %dx%d table", row, col, t.rows, len(t.columns)))
	}
	return t.data.At(row, col)
}

// Column returns a copy of a named column.
func (t *Table) Column(name string) ([]float64, bool) {
	j := slices.Index(t.columns, name)
	if j < 0 {
		return nil, false
	}
	if t.data == nil {
		return []float64{}, true
	}
	return mat.Col(nil, j, t.data), true
}

// Equal compares names, shape and values. NaNs compare equal to each other.
func (t *Table) Equal(o *Table) bool {
	if !slices.Equal(t.columns, o.columns) || t.rows != o.rows {
		return false
	}
	if t.data == nil || o.data == nil {
		return t.data == nil && o.data == nil
	}
	r, c := t.data.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a, b := t.data.At(i, j), o.data.At(i, j)
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				return false
			}
		}
	}
	return true
}
