package confounds

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// MotionColumns are the head-motion parameter columns: translations in mm
// then rotations in radians.
var MotionColumns = []string{"X", "Y", "Z", "RotX", "RotY", "RotZ"}

// FDColumn is the single column produced by FramewiseDisplacement.
const FDColumn = "FramewiseDisplacement"

// DefaultHeadRadius converts rotations to arc length on a sphere, in mm.
const DefaultHeadRadius = 50.0

// FramewiseDisplacement sums absolute backward differences of the three
// translations and the three rotations projected onto a sphere. The first
// timepoint has no predecessor and is reported as 0 so the table keeps one
// row per timepoint.
func FramewiseDisplacement(motion *Table, radius float64) (*Table, error) {
	cols := make([][]float64, len(MotionColumns))
	for i, name := range MotionColumns {
		c, ok := motion.Column(name)
		if !ok {
			return nil, fmt.Errorf("motion table lacks column %q", name)
		}
		cols[i] = c
	}

	n := motion.Rows()
	fd := make([]float64, n)
	delta := make([]float64, n)
	for i, c := range cols {
		if n < 2 {
			break
		}
		copy(delta[1:], c[1:])
		floats.Sub(delta[1:], c[:n-1])
		for k := 1; k < n; k++ {
			delta[k] = math.Abs(delta[k])
		}
		if i >= 3 {
			floats.Scale(radius, delta[1:])
		}
		floats.Add(fd[1:], delta[1:])
	}
	return FromColumns([]string{FDColumn}, fd)
}

// ReadMovpar reads a motion table written by WriteMovpar in either format.
func ReadMovpar(path string) (*Table, error) {
	if filepath.Ext(path) != ".txt" {
		return ReadFile(path)
	}
	rows, err := readColumns(path, 6)
	if err != nil {
		return nil, err
	}
	return NewTable(MotionColumns, rows)
}

// ParseMotionPlots reads an MCFLIRT-style .par file: whitespace-separated
// rows of three rotations (rad) then three translations (mm). The result
// uses MotionColumns order.
func ParseMotionPlots(path string) (*Table, error) {
	raw, err := readColumns(path, 6)
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, len(raw))
	for i, v := range raw {
		rows[i] = []float64{v[3], v[4], v[5], v[0], v[1], v[2]}
	}
	return NewTable(MotionColumns, rows)
}

// readColumns parses whitespace-separated numeric rows, skipping blank lines.
func readColumns(path string, n int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != n {
			return nil, fmt.Errorf("%s:%d: expected %d values, got %d", filepath.Base(path), line, n, len(fields))
		}
		v := make([]float64, n)
		for i, s := range fields {
			if v[i], err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
			}
		}
		rows = append(rows, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// MovparFormat selects how motion parameters are written.
type MovparFormat string

const (
	// MovparConfounds is a TSV with a header row.
	MovparConfounds MovparFormat = "confounds"
	// MovparFile is headerless and space separated.
	MovparFile MovparFormat = "movpar_file"
)

// WriteMovpar writes motion parameters into dir and returns the file path.
func WriteMovpar(dir string, motion *Table, format MovparFormat) (string, error) {
	switch format {
	case MovparConfounds:
		out := filepath.Join(dir, "movpar.tsv")
		return out, WriteFile(out, motion)
	case MovparFile:
		out := filepath.Join(dir, "movpar.txt")
		var sb strings.Builder
		for i := 0; i < motion.Rows(); i++ {
			for j := range motion.columns {
				if j > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(strconv.FormatFloat(motion.At(i, j), 'e', 18, 64))
			}
			sb.WriteByte('\n')
		}
		return out, os.WriteFile(out, []byte(sb.String()), 0o644)
	}
	return "", fmt.Errorf("unknown movpar format %q", format)
}
