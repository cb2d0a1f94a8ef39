package confounds

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// naValue is the BIDS spelling of a missing value.
const naValue = "n/a"

// ReadTSV parses a tab-separated table with one header row.
func ReadTSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = 0
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty table: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := parseValue(field)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, header[j], err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return NewTable(header, rows)
}

func parseValue(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == naValue || field == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(field, 64)
}

// WriteTSV writes the table with a header row. NaN is written as n/a.
func WriteTSV(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(t.columns, "\t") + "\n"); err != nil {
		return err
	}
	fields := make([]string, len(t.columns))
	for i := 0; i < t.rows; i++ {
		for j := range t.columns {
			fields[j] = formatValue(t.At(i, j))
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return naValue
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadFile reads a TSV table from disk.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// WriteFile writes a TSV table to disk.
func WriteFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
