package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ahrav/go-prism/internal/domain"
)

// TerminalOptions controls terminal output.
type TerminalOptions struct {
	// NoColor disables ANSI colors regardless of the terminal.
	NoColor bool
}

func colorFor(c domain.Color, noColor bool) *color.Color {
	var out *color.Color
	switch c {
	case domain.Green:
		out = color.New(color.FgGreen)
	case domain.Yellow:
		out = color.New(color.FgYellow, color.Bold)
	default:
		out = color.New(color.FgRed, color.Bold)
	}
	if noColor {
		out.DisableColor()
	}
	return out
}

// Label returns the upper-case color name, colored for terminals.
func Label(c domain.Color, noColor bool) string {
	return colorFor(c, noColor).Sprint(strings.ToUpper(c.String()))
}

// WriteTerminal writes sc as a table followed by the overall rating.
func WriteTerminal(w io.Writer, sc domain.Scorecard, opts TerminalOptions) error {
	title := sc.ModelID
	if sc.ModelName != "" {
		title = fmt.Sprintf("%s (%s)", sc.ModelName, sc.ModelID)
	}
	if sc.ModelVersion != "" {
		title += " v" + sc.ModelVersion
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Metric", "Sector", "Value", "Status"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.PerColumn = []tw.Align{tw.AlignLeft, tw.AlignLeft, tw.AlignRight, tw.AlignLeft}
	})

	var data [][]string
	for _, sec := range sc.Sectors {
		sector := DisplayName(sec.Name)
		for _, row := range sec.Metrics {
			data = append(data, []string{
				DisplayName(row.Key),
				sector,
				formatValue(row.Value),
				Label(row.Color, opts.NoColor),
			})
		}
		data = append(data, []string{"", sector + " rating", "", Label(sec.Color, opts.NoColor)})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "Overall model rating: %s\n", Label(sc.Final, opts.NoColor))
	return err
}
