package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

var _ ports.DatasetLoader = CSVLoader{}

// CSVLoader reads delimited text with a header row.
type CSVLoader struct {
	// Comma is the field delimiter; zero selects ','.
	Comma rune
}

// Load implements ports.DatasetLoader.
func (l CSVLoader) Load(ctx context.Context, path string) (*domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	d, err := l.Read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return d, nil
}

// Read parses delimited text from r. The context is checked between rows.
func (l CSVLoader) Read(ctx context.Context, r io.Reader) (*domain.Dataset, error) {
	cr := csv.NewReader(r)
	if l.Comma != 0 {
		cr.Comma = l.Comma
	}
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, err
	}
	b, err := newColumnBuilder(append([]string(nil), header...))
	if err != nil {
		return nil, err
	}

	cells := make([]cell, len(header))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, v := range record {
			cells[i] = parseText(v)
		}
		b.appendRow(cells)
	}
	return b.build()
}

// WriteCSV writes d with a header row. Floats use the shortest
// representation that round-trips; NaN is written as an empty field.
func WriteCSV(w io.Writer, d *domain.Dataset) error {
	cw := csv.NewWriter(w)
	cols := d.Columns()
	if err := cw.Write(cols); err != nil {
		return err
	}

	floats := make([][]float64, len(cols))
	texts := make([][]string, len(cols))
	for i, name := range cols {
		if f, err := d.Float(name); err == nil {
			floats[i] = f
			continue
		}
		s, err := d.Strings(name)
		if err != nil {
			return err
		}
		texts[i] = s
	}

	record := make([]string, len(cols))
	for r := range d.Len() {
		for i := range cols {
			if floats[i] != nil {
				v := floats[i][r]
				if math.IsNaN(v) {
					record[i] = ""
				} else {
					record[i] = strconv.FormatFloat(v, 'f', -1, 64)
				}
				continue
			}
			record[i] = texts[i][r]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
