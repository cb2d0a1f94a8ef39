package confounds

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	tbl, err := NewTable([]string{"a", "b"}, [][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Rows())
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())

	col, ok := tbl.Column("b")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 4, 6}, col)

	_, ok = tbl.Column("c")
	assert.False(t, ok)

	_, err = NewTable([]string{"a", "b"}, [][]float64{{1}})
	assert.Error(t, err)
}

func TestFromColumns(t *testing.T) {
	tbl, err := FromColumns([]string{"x", "y"}, []float64{1, 2}, []float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4.0, tbl.At(1, 1))

	_, err = FromColumns([]string{"x", "y"}, []float64{1, 2}, []float64{3})
	assert.Error(t, err)

	_, err = FromColumns([]string{"x"})
	assert.Error(t, err)
}

func TestTable_EmptyShapes(t *testing.T) {
	noRows, err := NewTable([]string{"a", "b"}, nil)
	require.NoError(t, err)
	noCols, err := FromColumns(nil)
	require.NoError(t, err)

	for name, tbl := range map[string]*Table{"no rows": noRows, "no columns": noCols} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 0, tbl.Rows())
			assert.Panics(t, func() { tbl.At(0, 0) })
		})
	}

	col, ok := noRows.Column("a")
	require.True(t, ok)
	assert.Empty(t, col)
	assert.True(t, noRows.Equal(noRows))
}

func TestReadTSV(t *testing.T) {
	in := "GlobalSignal\tCSF\n1.5\tn/a\n2\t-0.25\n"
	tbl, err := ReadTSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"GlobalSignal", "CSF"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Rows())
	assert.True(t, math.IsNaN(tbl.At(0, 1)))
	assert.Equal(t, -0.25, tbl.At(1, 1))
}

func TestReadTSV_Errors(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "ragged", in: "a\tb\n1\t2\n3\n"},
		{name: "not a number", in: "a\nabc\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadTSV(strings.NewReader(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestReadTSV_HeaderOnly(t *testing.T) {
	tbl, err := ReadTSV(strings.NewReader("a\tb\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Rows())
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
}

func TestWriteTSV_Golden(t *testing.T) {
	signals, err := NewTable([]string{"GlobalSignal", "CSF", "GrayMatter", "WhiteMatter"},
		[][]float64{{101.5, 88, 120.25, 99}, {102, 87.5, 119.75, 98.5}, {100.75, 88.25, 121, 99.25}})
	require.NoError(t, err)
	fd, err := FromColumns([]string{FDColumn}, []float64{0, 0.125, math.NaN()})
	require.NoError(t, err)
	tcomp, err := FromColumns([]string{"tCompCor00", "tCompCor01"}, []float64{0.1, -0.2, 0.3}, []float64{1e-05, 0, -1e-05})
	require.NoError(t, err)
	acomp, err := FromColumns([]string{"aCompCor00"}, []float64{-0.5, 0.5, 0})
	require.NoError(t, err)

	combined, err := Concat(
		NamedTable{Name: "signals", Table: signals},
		NamedTable{Name: "fd", Table: fd},
		NamedTable{Name: "tcompcor", Table: tcomp},
		NamedTable{Name: "acompcor", Table: acomp},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, combined))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "confounds", buf.Bytes())

	back, err := ReadTSV(&buf)
	require.NoError(t, err)
	assert.True(t, back.Equal(combined))
}
