package dataset

import (
	"bytes"
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-prism/internal/domain"
)

const scoresCSV = `actual,predicted,segment,period
1,0.9,retail,2024Q1
0,0.2,retail,2024Q1
1,,corporate,2024Q2
0,0.4,corporate,NA
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCSVLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("infers column kinds", func(t *testing.T) {
		d, err := CSVLoader{}.Load(ctx, writeFile(t, "scores.csv", scoresCSV))
		require.NoError(t, err)

		assert.Equal(t, 4, d.Len())
		assert.Equal(t, []string{"actual", "predicted", "segment", "period"}, d.Columns())

		actual, err := d.Float("actual")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 0, 1, 0}, actual)

		predicted, err := d.Float("predicted")
		require.NoError(t, err)
		assert.Equal(t, 0.9, predicted[0])
		assert.True(t, math.IsNaN(predicted[2]), "empty cell is NaN")

		segment, err := d.Strings("segment")
		require.NoError(t, err)
		assert.Equal(t, []string{"retail", "retail", "corporate", "corporate"}, segment)

		period, err := d.Strings("period")
		require.NoError(t, err)
		assert.Equal(t, "", period[3], "missing marker in a string column is empty")
	})

	t.Run("numeric text in a string column keeps its text", func(t *testing.T) {
		d, err := CSVLoader{}.Read(ctx, strings.NewReader("id\n007\nabc\n"))
		require.NoError(t, err)
		ids, err := d.Strings("id")
		require.NoError(t, err)
		assert.Equal(t, []string{"007", "abc"}, ids)
	})

	t.Run("tab separated", func(t *testing.T) {
		d, err := Open(ctx, writeFile(t, "scores.tsv", "a\tb\n1\tx\n"))
		require.NoError(t, err)
		assert.True(t, d.HasColumn("b"))
	})

	errorTests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "empty file", content: "", wantErr: "missing header row"},
		{name: "duplicate column", content: "a,a\n1,2\n", wantErr: `duplicate column "a"`},
		{name: "unnamed column", content: "a,\n1,2\n", wantErr: "column 2 has no name"},
		{name: "ragged row", content: "a,b\n1\n", wantErr: "wrong number of fields"},
	}
	for _, tt := range errorTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CSVLoader{}.Read(ctx, strings.NewReader(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := CSVLoader{}.Read(cctx, strings.NewReader(scoresCSV))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := CSVLoader{}.Load(ctx, filepath.Join(t.TempDir(), "nope.csv"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestWriteCSV(t *testing.T) {
	d := domain.NewDataset(2)
	require.NoError(t, d.AddFloat("predicted", []float64{0.25, math.NaN()}))
	require.NoError(t, d.AddString("segment", []string{"retail", "sme"}))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, d))
	assert.Equal(t, "predicted,segment\n0.25,retail\n,sme\n", buf.String())

	back, err := CSVLoader{}.Read(context.Background(), &buf)
	require.NoError(t, err)
	predicted, err := back.Float("predicted")
	require.NoError(t, err)
	assert.Equal(t, 0.25, predicted[0])
	assert.True(t, math.IsNaN(predicted[1]))
}

type parquetRow struct {
	Actual    int64    `parquet:"actual"`
	Predicted float64  `parquet:"predicted"`
	Reference *float64 `parquet:"reference_score,optional"`
	Segment   string   `parquet:"segment"`
	Flag      bool     `parquet:"flag"`
}

func TestParquetLoader(t *testing.T) {
	ref := 0.5
	rows := []parquetRow{
		{Actual: 1, Predicted: 0.9, Reference: &ref, Segment: "retail", Flag: true},
		{Actual: 0, Predicted: 0.1, Segment: "corporate"},
	}
	path := filepath.Join(t.TempDir(), "scores.parquet")
	require.NoError(t, WriteParquet(path, rows))

	d, err := Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	actual, err := d.Float("actual")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, actual)

	predicted, err := d.Float("predicted")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.1}, predicted)

	reference, err := d.Float("reference_score")
	require.NoError(t, err)
	assert.Equal(t, 0.5, reference[0])
	assert.True(t, math.IsNaN(reference[1]))

	segment, err := d.Strings("segment")
	require.NoError(t, err)
	assert.Equal(t, []string{"retail", "corporate"}, segment)

	flag, err := d.Float("flag")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, flag)

	t.Run("not a parquet file", func(t *testing.T) {
		_, err := ParquetLoader{}.Load(context.Background(), writeFile(t, "bad.parquet", "not parquet"))
		assert.Error(t, err)
	})
}

func TestSQLiteLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE scores (actual INTEGER, predicted REAL, segment TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO scores VALUES (1, 0.8, 'retail'), (0, NULL, 'sme'), (1, 0.6, NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	t.Run("default query", func(t *testing.T) {
		d, err := Open(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, 3, d.Len())

		predicted, err := d.Float("predicted")
		require.NoError(t, err)
		assert.Equal(t, 0.8, predicted[0])
		assert.True(t, math.IsNaN(predicted[1]))

		segment, err := d.Strings("segment")
		require.NoError(t, err)
		assert.Equal(t, []string{"retail", "sme", ""}, segment)
	})

	t.Run("custom query", func(t *testing.T) {
		d, err := SQLiteLoader{Query: "SELECT actual AS y FROM scores WHERE actual = 1"}.Load(context.Background(), path)
		require.NoError(t, err)
		y, err := d.Float("y")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 1}, y)
	})

	t.Run("bad query", func(t *testing.T) {
		_, err := SQLiteLoader{Query: "SELECT * FROM missing"}.Load(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("missing database", func(t *testing.T) {
		_, err := SQLiteLoader{}.Load(context.Background(), filepath.Join(t.TempDir(), "none.db"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLoaderFor(t *testing.T) {
	tests := []struct {
		path    string
		want    any
		wantErr bool
	}{
		{path: "a.csv", want: CSVLoader{}},
		{path: "a.TSV", want: CSVLoader{Comma: '\t'}},
		{path: "a.parquet", want: ParquetLoader{}},
		{path: "a.pq", want: ParquetLoader{}},
		{path: "a.sqlite3", want: SQLiteLoader{}},
		{path: "a.xlsx", wantErr: true},
		{path: "noext", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := LoaderFor(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credit_risk.csv"), []byte("a\n1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credit_risk.parquet"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "churn.csv"), 0o700))

	path, err := Find(dir, "credit_risk")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "credit_risk.parquet"), path, "parquet is preferred")

	_, err = Find(dir, "churn")
	assert.ErrorIs(t, err, ErrNotFound, "directories are not datasets")

	_, err = Find(dir, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
