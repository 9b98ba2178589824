package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	// Registers the pure Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// DefaultSQLiteQuery selects the scores table when no query is configured.
const DefaultSQLiteQuery = "SELECT * FROM scores"

var _ ports.DatasetLoader = SQLiteLoader{}

// SQLiteLoader runs a query against a SQLite database file and returns the
// result set as a dataset. Integer, real and boolean values are numeric;
// text and blobs are strings.
type SQLiteLoader struct {
	// Query is the SELECT statement to run; empty selects DefaultSQLiteQuery.
	Query string
}

// Load implements ports.DatasetLoader. The database is opened read-only.
func (l SQLiteLoader) Load(ctx context.Context, path string) (*domain.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = db.Close() }()

	query := l.Query
	if query == "" {
		query = DefaultSQLiteQuery
	}
	d, err := Query(ctx, db, query)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return d, nil
}

// Query runs query on db and converts the result set into a dataset.
func Query(ctx context.Context, db *sql.DB, query string, args ...any) (*domain.Dataset, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	b, err := newColumnBuilder(names)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	cells := make([]cell, len(names))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			cells[i] = sqlCell(v)
		}
		b.appendRow(cells)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.build()
}

func sqlCell(v any) cell {
	switch n := v.(type) {
	case nil:
		return nullCell()
	case int64:
		return numCell(float64(n))
	case float64:
		return numCell(n)
	case bool:
		if n {
			return numCell(1)
		}
		return numCell(0)
	case []byte:
		return textCell(string(n))
	case string:
		return textCell(n)
	case time.Time:
		return textCell(n.Format(time.RFC3339))
	default:
		return textCell(fmt.Sprint(n))
	}
}
