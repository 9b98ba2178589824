// Package render turns computed scorecards into markdown, inline HTML and
// terminal tables. Every function here is a pure formatter over read-only
// domain values.
package render

import (
	"fmt"
	"math"

	"github.com/ahrav/go-prism/internal/domain"
)

// badgeSymbol is the filled circle shown in front of every badge.
const badgeSymbol = "●"

type colorStyle struct {
	hex   string
	label string
}

var styles = map[domain.Color]colorStyle{
	domain.Green:  {hex: "#28a745", label: "Green"},
	domain.Yellow: {hex: "#ffc107", label: "Yellow"},
	domain.Red:    {hex: "#dc3545", label: "Red"},
}

// styleFor returns the style of c. Invalid colors render as red so an unset
// color never looks healthy.
func styleFor(c domain.Color) colorStyle {
	if s, ok := styles[c]; ok {
		return s
	}
	return styles[domain.Red]
}

// Hex returns the CSS color of c.
func Hex(c domain.Color) string { return styleFor(c).hex }

// Badge renders c as an inline HTML span with a colored circle. An empty
// label selects the color name.
//
// Example output:
//
//	<span style="color:#28a745;font-weight:bold;">● Green</span>
func Badge(c domain.Color, label string) string {
	s := styleFor(c)
	if label == "" {
		label = s.label
	}
	return fmt.Sprintf(`<span style="color:%s;font-weight:bold;">%s %s</span>`, s.hex, badgeSymbol, label)
}

// KPI renders a bold label followed by value. A valid color wraps the value
// in a colored span; the zero Color leaves it plain.
func KPI(label, value string, c domain.Color) string {
	if !c.Valid() {
		return fmt.Sprintf("**%s:** %s", label, value)
	}
	return fmt.Sprintf(`**%s:** <span style="color:%s;font-weight:bold;">%s</span>`, label, Hex(c), value)
}

// DeltaMode selects how Delta expresses a change.
type DeltaMode int

const (
	// DeltaPercent shows the change relative to the previous value.
	DeltaPercent DeltaMode = iota
	// DeltaAbsolute shows the raw difference.
	DeltaAbsolute
)

// Delta renders the change from previous to current with an up or down
// arrow, e.g. "▲ +5.2%" or "▼ -0.0312". A zero previous value always uses
// the absolute form.
func Delta(current, previous float64, mode DeltaMode) string {
	diff := current - previous
	if mode == DeltaPercent && previous != 0 {
		pct := diff / math.Abs(previous) * 100
		return fmt.Sprintf("%s %+.1f%%", arrow(pct), pct)
	}
	return fmt.Sprintf("%s %+.4f", arrow(diff), diff)
}

func arrow(v float64) string {
	if v >= 0 {
		return "▲"
	}
	return "▼"
}
