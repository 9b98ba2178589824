package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-prism/internal/domain"
)

// Table rendering defaults.
const (
	DefaultMaxRows   = 50
	DefaultPrecision = 4
)

// missingValue is shown for a metric without a numeric value.
const missingValue = "—"

const blankRow = "| | | | |"

// Scorecard renders sc as a markdown table: one row per metric, a sector
// rating after each sector, and the overall model rating last.
func Scorecard(sc domain.Scorecard) string {
	lines := []string{
		"| Metric | Sector | Value | Status |",
		"|--------|--------|------:|--------|",
	}

	for i, sec := range sc.Sectors {
		sector := DisplayName(sec.Name)
		for _, row := range sec.Metrics {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s |",
				DisplayName(row.Key), sector, formatValue(row.Value), Badge(row.Color, "")))
		}
		lines = append(lines, fmt.Sprintf("| **%s** | *Sector Rating* | | %s |", sector, Badge(sec.Color, "")))
		if i < len(sc.Sectors)-1 {
			lines = append(lines, blankRow)
		}
	}

	lines = append(lines,
		blankRow,
		fmt.Sprintf("| **Overall Model Rating** | | | %s |", Badge(sc.Final, "")),
	)
	return strings.Join(lines, "\n")
}

// Header renders the report title with the final color, the report date
// and the model id, followed by a horizontal rule.
func Header(sc domain.Scorecard, date time.Time) string {
	name := sc.ModelName
	if name == "" {
		name = sc.ModelID
	}
	return fmt.Sprintf("# %s — %s\n\n**Report Date:** %s &nbsp;|&nbsp; **Model ID:** `%s`\n\n---\n",
		name, Badge(sc.Final, ""), date.Format(time.DateOnly), sc.ModelID)
}

// SectionHeader renders a level three heading for one metric with its badge.
func SectionHeader(key string, c domain.Color) string {
	return fmt.Sprintf("### %s %s\n", DisplayName(key), Badge(c, ""))
}

// TableOptions controls Table output. Zero fields select the defaults.
type TableOptions struct {
	MaxRows   int
	Precision int
}

// Table renders t as a pipe markdown table. Numeric columns are right
// aligned and floats are rounded to the configured precision. Rows past
// MaxRows are dropped with a note.
func Table(t domain.Table, opts TableOptions) string {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Precision <= 0 {
		opts.Precision = DefaultPrecision
	}
	if len(t.Columns) == 0 {
		return ""
	}

	rows := t.Rows
	if len(rows) > opts.MaxRows {
		rows = rows[:opts.MaxRows]
	}

	cells := make([][]string, len(rows))
	numeric := make([]bool, len(t.Columns))
	for i := range numeric {
		numeric[i] = len(rows) > 0
	}
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = max(len(c), 3)
	}

	for r, row := range rows {
		cells[r] = make([]string, len(t.Columns))
		for c := range t.Columns {
			var v any
			if c < len(row) {
				v = row[c]
			}
			s, isNum := formatCell(v, opts.Precision)
			if v != nil && !isNum {
				numeric[c] = false
			}
			cells[r][c] = s
			widths[c] = max(widths[c], len([]rune(s)))
		}
	}

	var b strings.Builder
	writeRow := func(values []string) {
		b.WriteString("|")
		for c, v := range values {
			b.WriteString(" ")
			b.WriteString(pad(v, widths[c], numeric[c]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(t.Columns)
	b.WriteString("|")
	for c := range t.Columns {
		if numeric[c] {
			b.WriteString(strings.Repeat("-", widths[c]+1) + ":|")
		} else {
			b.WriteString(":" + strings.Repeat("-", widths[c]+1) + "|")
		}
	}
	b.WriteString("\n")
	for _, r := range cells {
		writeRow(r)
	}

	out := strings.TrimSuffix(b.String(), "\n")
	if len(t.Rows) > opts.MaxRows {
		out += fmt.Sprintf("\n\n*Showing %d of %d rows.*", opts.MaxRows, len(t.Rows))
	}
	return out
}

func pad(s string, width int, right bool) string {
	n := width - len([]rune(s))
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// formatValue renders a metric value with four decimals.
func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return missingValue
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// formatCell renders one table cell and reports whether it is numeric.
func formatCell(v any, precision int) (string, bool) {
	switch n := v.(type) {
	case nil:
		return "", false
	case float64:
		return formatFloat(n, precision), true
	case float32:
		return formatFloat(float64(n), precision), true
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case fmt.Stringer:
		return n.String(), false
	default:
		return fmt.Sprint(n), false
	}
}

func formatFloat(v float64, precision int) string {
	if math.IsNaN(v) {
		return "nan"
	}
	if math.IsInf(v, 0) {
		if v > 0 {
			return "inf"
		}
		return "-inf"
	}
	scale := math.Pow10(precision)
	return strconv.FormatFloat(math.Round(v*scale)/scale, 'f', -1, 64)
}
