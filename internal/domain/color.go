// Package domain contains pure, dependency-free domain models and types
// for RAG (red/amber/green) model health scoring.
package domain

import (
	"fmt"
	"strings"
)

// Color is a RAG status. Colors are totally ordered by severity:
// Green < Yellow < Red. The zero value is not a valid color so that an
// unset color can never be mistaken for a healthy one.
type Color uint8

// Supported colors in ascending order of severity.
const (
	// Green indicates the metric or model is healthy.
	Green Color = iota + 1
	// Yellow indicates the metric or model needs attention (amber).
	Yellow
	// Red indicates the metric or model is unhealthy.
	Red
)

// AllColors lists every valid color ordered from best to worst.
var AllColors = []Color{Green, Yellow, Red}

// Severity returns the position of the color in the severity order.
// Higher values are worse. Invalid colors return 0.
func (c Color) Severity() int {
	if !c.Valid() {
		return 0
	}
	return int(c)
}

// Valid reports whether c is one of Green, Yellow or Red.
func (c Color) Valid() bool { return c >= Green && c <= Red }

// String returns the lower-case color name used in configuration files.
func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	default:
		return fmt.Sprintf("color(%d)", uint8(c))
	}
}

// MarshalText implements encoding.TextMarshaler so colors serialize by name.
func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidColor, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor converts a color name into a Color. Matching is case
// insensitive and "amber" is accepted as an alias of yellow.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green":
		return Green, nil
	case "yellow", "amber":
		return Yellow, nil
	case "red":
		return Red, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
}

// Worse returns the more severe of a and b.
func Worse(a, b Color) Color {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Better returns the less severe of a and b.
func Better(a, b Color) Color {
	if b.Severity() < a.Severity() {
		return b
	}
	return a
}
