// Package dataset loads model input data from CSV, Parquet and SQLite
// files into domain.Dataset values.
//
// Column kinds are inferred: a column whose non-null values are all numeric
// becomes a float column with NaN for nulls, anything else becomes a string
// column with empty strings for nulls.
//
// Usage:
//
//	data, err := dataset.Open(ctx, "testdata/scores.parquet")
//	gini, err := metrics.Gini(ctx, data, nil)
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// Lookup errors.
var (
	// ErrUnsupportedFormat is returned by Open for an unknown file extension.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	// ErrNotFound is returned by Find when no dataset file exists.
	ErrNotFound = errors.New("dataset not found")
)

// Extensions lists the recognized dataset extensions in Find order.
var Extensions = []string{".parquet", ".pq", ".csv", ".tsv", ".sqlite", ".sqlite3", ".db"}

// LoaderFor returns the loader for path based on its extension.
func LoaderFor(path string) (ports.DatasetLoader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSVLoader{}, nil
	case ".tsv":
		return CSVLoader{Comma: '\t'}, nil
	case ".parquet", ".pq":
		return ParquetLoader{}, nil
	case ".db", ".sqlite", ".sqlite3":
		return SQLiteLoader{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Open loads path with the loader matching its extension.
func Open(ctx context.Context, path string) (*domain.Dataset, error) {
	loader, err := LoaderFor(path)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, path)
}

// Find returns the path of the dataset named name in dir, trying each of
// Extensions in order.
func Find(dir, name string) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, name+ext)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no %s.{parquet,csv,tsv,sqlite,db} in %s", ErrNotFound, name, dir)
}

// cell is one parsed value before the column kind is known.
type cell struct {
	num   float64
	text  string
	isNum bool
	null  bool
}

func nullCell() cell { return cell{null: true, num: math.NaN()} }

func numCell(v float64) cell {
	return cell{num: v, text: strconv.FormatFloat(v, 'f', -1, 64), isNum: true}
}

func textCell(s string) cell { return cell{text: s} }

// columnBuilder accumulates cells column by column and infers kinds.
type columnBuilder struct {
	names []string
	cols  [][]cell
}

func newColumnBuilder(names []string) (*columnBuilder, error) {
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("column %d has no name", i+1)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate column %q", n)
		}
		seen[n] = struct{}{}
		names[i] = n
	}
	return &columnBuilder{names: names, cols: make([][]cell, len(names))}, nil
}

func (b *columnBuilder) appendRow(cells []cell) {
	for i := range b.cols {
		b.cols[i] = append(b.cols[i], cells[i])
	}
}

func (b *columnBuilder) build() (*domain.Dataset, error) {
	rows := 0
	if len(b.cols) > 0 {
		rows = len(b.cols[0])
	}
	d := domain.NewDataset(rows)
	for i, name := range b.names {
		col := b.cols[i]
		if isNumeric(col) {
			values := make([]float64, len(col))
			for r, c := range col {
				values[r] = c.num
			}
			if err := d.AddFloat(name, values); err != nil {
				return nil, err
			}
			continue
		}
		values := make([]string, len(col))
		for r, c := range col {
			values[r] = c.text
		}
		if err := d.AddString(name, values); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func isNumeric(col []cell) bool {
	for _, c := range col {
		if !c.null && !c.isNum {
			return false
		}
	}
	return true
}

// parseText turns a textual value into a cell. Empty strings and the usual
// missing-value markers are null.
func parseText(s string) cell {
	t := strings.TrimSpace(s)
	switch t {
	case "", "NA", "N/A", "null", "NULL", "None":
		return nullCell()
	}
	if v, err := strconv.ParseFloat(t, 64); err == nil {
		return cell{num: v, text: s, isNum: true}
	}
	return textCell(s)
}
