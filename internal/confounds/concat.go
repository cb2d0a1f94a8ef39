package confounds

import (
	"github.com/vk/fmriflow/internal/pipelineerr"
	"gonum.org/v1/gonum/mat"
)

// NamedTable labels a table with the sub-computation that produced it.
type NamedTable struct {
	Name  string
	Table *Table
}

// Concat joins tables column-wise in the given order. Every table must have
// the same number of rows and no column may appear twice.
func Concat(tables ...NamedTable) (*Table, error) {
	owner := map[string]string{}
	var columns []string
	for _, nt := range tables {
		for _, c := range nt.Table.columns {
			if first, ok := owner[c]; ok {
				return nil, &pipelineerr.AggregationConflict{Column: c, First: first, Second: nt.Name}
			}
			owner[c] = nt.Name
			columns = append(columns, c)
		}
	}

	if len(tables) == 0 {
		return &Table{}, nil
	}
	rows := tables[0].Table.rows
	for _, nt := range tables[1:] {
		if nt.Table.rows != rows {
			return nil, &pipelineerr.ShapeMismatch{
				Table:    nt.Name,
				Rows:     nt.Table.rows,
				Expected: rows,
				Against:  tables[0].Name,
			}
		}
	}

	out := &Table{columns: columns, rows: rows}
	for _, nt := range tables {
		if nt.Table.data == nil {
			continue
		}
		if out.data == nil {
			out.data = mat.DenseCopyOf(nt.Table.data)
			continue
		}
		var joined mat.Dense
		joined.Augment(out.data, nt.Table.data)
		out.data = &joined
	}
	return out, nil
}
