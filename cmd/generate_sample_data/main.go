// Command generate_sample_data writes a synthetic scored dataset for trying
// out prism: binary outcomes with calibrated scores, a reference score per
// row, segments, periods and two features with reference columns.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/ahrav/go-prism/infrastructure/dataset"
	"github.com/ahrav/go-prism/internal/domain"
)

// scoreRow is one row of the generated dataset.
type scoreRow struct {
	Actual         float64 `parquet:"actual"`
	Predicted      float64 `parquet:"predicted"`
	ReferenceScore float64 `parquet:"reference_score"`
	Segment        string  `parquet:"segment"`
	Period         string  `parquet:"period"`
	Income         float64 `parquet:"income"`
	IncomeRef      float64 `parquet:"income_ref"`
	Utilization    float64 `parquet:"utilization"`
	UtilizationRef float64 `parquet:"utilization_ref"`
}

var (
	periods  = []string{"2024-Q1", "2024-Q2", "2024-Q3", "2024-Q4"}
	segments = []string{"retail", "sme", "corporate"}
)

func main() {
	var (
		rows   = flag.Int("rows", 5000, "Number of rows to generate")
		seed   = flag.Uint64("seed", 42, "Random seed")
		drift  = flag.Float64("drift", 0.05, "Shift of current scores and features away from the reference")
		noise  = flag.Float64("noise", 0.0, "Fraction of outcomes flipped at random, lowering discrimination")
		outDir = flag.String("output", "data", "Output directory")
		name   = flag.String("name", "example_model", "Dataset name, usually the model id")
		format = flag.String("format", "both", "Output format: csv, parquet or both")
	)
	flag.Parse()

	if *rows <= 0 {
		log.Fatalf("rows must be positive, got %d", *rows)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	data := generate(*rows, *seed, *drift, *noise)

	var written []string
	if *format == "csv" || *format == "both" {
		path := filepath.Join(*outDir, *name+".csv")
		if err := writeCSV(path, data); err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
		written = append(written, path)
	}
	if *format == "parquet" || *format == "both" {
		path := filepath.Join(*outDir, *name+".parquet")
		if err := dataset.WriteParquet(path, data); err != nil {
			log.Fatalf("Failed to write Parquet: %v", err)
		}
		written = append(written, path)
	}
	if len(written) == 0 {
		log.Fatalf("Unknown format %q: want csv, parquet or both", *format)
	}

	events := 0
	for _, r := range data {
		if r.Actual == 1 {
			events++
		}
	}
	fmt.Printf("Generated sample dataset:\n")
	fmt.Printf("- Rows: %d\n", len(data))
	fmt.Printf("- Event rate: %.2f%%\n", 100*float64(events)/float64(len(data)))
	for _, p := range written {
		fmt.Printf("- Path: %s\n", p)
	}
}

func generate(n int, seed uint64, drift, noise float64) []scoreRow {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]scoreRow, n)
	for i := range out {
		ref := rng.Float64()
		cur := clamp01(ref + drift + rng.NormFloat64()*0.05)

		actual := 0.0
		if rng.Float64() < cur {
			actual = 1
		}
		if rng.Float64() < noise {
			actual = 1 - actual
		}

		incomeRef := math.Exp(10.5 + rng.NormFloat64()*0.4)
		utilRef := clamp01(rng.Float64())
		out[i] = scoreRow{
			Actual:         actual,
			Predicted:      round4(cur),
			ReferenceScore: round4(ref),
			Segment:        segments[rng.IntN(len(segments))],
			Period:         periods[i*len(periods)/n],
			Income:         math.Round(incomeRef * (1 + drift*rng.NormFloat64())),
			IncomeRef:      math.Round(incomeRef),
			Utilization:    round4(clamp01(utilRef + drift)),
			UtilizationRef: round4(utilRef),
		}
	}
	return out
}

// writeCSV converts rows to a domain.Dataset and writes it as CSV.
func writeCSV(path string, rows []scoreRow) (err error) {
	d := domain.NewDataset(len(rows))
	floats := []struct {
		name string
		get  func(scoreRow) float64
	}{
		{"actual", func(r scoreRow) float64 { return r.Actual }},
		{"predicted", func(r scoreRow) float64 { return r.Predicted }},
		{"reference_score", func(r scoreRow) float64 { return r.ReferenceScore }},
		{"income", func(r scoreRow) float64 { return r.Income }},
		{"income_ref", func(r scoreRow) float64 { return r.IncomeRef }},
		{"utilization", func(r scoreRow) float64 { return r.Utilization }},
		{"utilization_ref", func(r scoreRow) float64 { return r.UtilizationRef }},
	}
	for _, col := range floats {
		vals := make([]float64, len(rows))
		for i, r := range rows {
			vals[i] = col.get(r)
		}
		if err := d.AddFloat(col.name, vals); err != nil {
			return err
		}
	}
	seg := make([]string, len(rows))
	per := make([]string, len(rows))
	for i, r := range rows {
		seg[i], per[i] = r.Segment, r.Period
	}
	if err := d.AddString("segment", seg); err != nil {
		return err
	}
	if err := d.AddString("period", per); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return dataset.WriteCSV(f, d)
}

func clamp01(v float64) float64 { return math.Min(1, math.Max(0, v)) }

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
