package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// parquetBatch is the number of rows read per call.
const parquetBatch = 512

var _ ports.DatasetLoader = ParquetLoader{}

// ParquetLoader reads flat Parquet files. Nested leaf columns are named by
// their dotted path; repeated columns are rejected.
type ParquetLoader struct{}

// Load implements ports.DatasetLoader.
func (ParquetLoader) Load(ctx context.Context, path string) (*domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	d, err := readParquet(ctx, pf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return d, nil
}

func readParquet(ctx context.Context, pf *parquet.File) (*domain.Dataset, error) {
	schema := pf.Schema()
	paths := schema.Columns()
	names := make([]string, len(paths))
	for i, p := range paths {
		leaf, ok := schema.Lookup(p...)
		if !ok {
			return nil, fmt.Errorf("column %q not found in schema", strings.Join(p, "."))
		}
		if leaf.MaxRepetitionLevel > 0 {
			return nil, fmt.Errorf("repeated column %q is not supported", strings.Join(p, "."))
		}
		names[i] = strings.Join(p, ".")
	}

	b, err := newColumnBuilder(names)
	if err != nil {
		return nil, err
	}

	buf := make([]parquet.Row, parquetBatch)
	cells := make([]cell, len(names))
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(ctx, rg, buf, cells, b); err != nil {
			return nil, err
		}
	}
	return b.build()
}

func readRowGroup(ctx context.Context, rg parquet.RowGroup, buf []parquet.Row, cells []cell, b *columnBuilder) error {
	rows := rg.Rows()
	defer func() { _ = rows.Close() }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			for i := range cells {
				cells[i] = nullCell()
			}
			for _, v := range row {
				if c := v.Column(); c >= 0 && c < len(cells) {
					cells[c] = valueCell(v)
				}
			}
			b.appendRow(cells)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func valueCell(v parquet.Value) cell {
	if v.IsNull() {
		return nullCell()
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return numCell(1)
		}
		return numCell(0)
	case parquet.Int32:
		return numCell(float64(v.Int32()))
	case parquet.Int64:
		return numCell(float64(v.Int64()))
	case parquet.Float:
		return numCell(float64(v.Float()))
	case parquet.Double:
		return numCell(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return textCell(string(v.ByteArray()))
	default:
		return textCell(v.String())
	}
}

// WriteParquet writes rows to path with a schema derived from T's struct
// tags.
func WriteParquet[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
