package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Operator is a comparison operator used in a threshold rule.
type Operator string

// Supported comparison operators.
const (
	OpGE Operator = ">="
	OpLE Operator = "<="
	OpGT Operator = ">"
	OpLT Operator = "<"
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

var thresholdPattern = regexp.MustCompile(`^\s*(>=|<=|>|<|==|!=)\s*([+-]?\d+(?:\.\d+)?)\s*$`)

// Rule assigns Color to any value satisfying "value Op Bound".
type Rule struct {
	Color Color
	Op    Operator
	Bound float64
}

// Matches reports whether v satisfies the rule. NaN never matches.
func (r Rule) Matches(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch r.Op {
	case OpGE:
		return v >= r.Bound
	case OpLE:
		return v <= r.Bound
	case OpGT:
		return v > r.Bound
	case OpLT:
		return v < r.Bound
	case OpEQ:
		return v == r.Bound
	case OpNE:
		return v != r.Bound
	default:
		return false
	}
}

// Expression returns the rule's comparison in configuration syntax, e.g. ">= 0.4".
func (r Rule) Expression() string {
	return fmt.Sprintf("%s %s", r.Op, strconv.FormatFloat(r.Bound, 'f', -1, 64))
}

// String returns the color followed by the expression.
func (r Rule) String() string { return r.Color.String() + " " + r.Expression() }

// ParseRule parses a threshold expression such as ">= 0.4" into a Rule for color.
// It returns ErrInvalidThreshold if the expression does not match the rule grammar.
func ParseRule(color Color, expr string) (Rule, error) {
	if !color.Valid() {
		return Rule{}, fmt.Errorf("%w: rule %q", ErrInvalidColor, expr)
	}
	m := thresholdPattern.FindStringSubmatch(expr)
	if m == nil {
		return Rule{}, fmt.Errorf("%w: %q", ErrInvalidThreshold, expr)
	}
	bound, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %q: %w", ErrInvalidThreshold, expr, err)
	}
	return Rule{Color: color, Op: Operator(m[1]), Bound: bound}, nil
}

// MustParseRule is like ParseRule but panics on error. It is intended for
// tests and static rule tables.
func MustParseRule(color Color, expr string) Rule {
	r, err := ParseRule(color, expr)
	if err != nil {
		panic(err)
	}
	return r
}

// ValidThreshold reports whether expr is a well-formed threshold expression.
func ValidThreshold(expr string) bool { return thresholdPattern.MatchString(expr) }

// Thresholds is an ordered list of rules. Order is significant: the first
// matching rule decides the color.
type Thresholds []Rule

// Evaluate returns the color of the first rule in ts that value satisfies.
// Rules are tried in declared order. It returns a *ThresholdError wrapping
// ErrNoThresholdMatched when no rule matches, including when value is NaN.
func Evaluate(value float64, ts Thresholds) (Color, error) {
	for _, r := range ts {
		if r.Matches(value) {
			return r.Color, nil
		}
	}
	return 0, &ThresholdError{Value: value, Rules: ts}
}

// DefaultWeightedThresholds converts a weighted color score back to a color
// when a weighted_average sector declares no thresholds of its own.
var DefaultWeightedThresholds = Thresholds{
	{Color: Green, Op: OpGE, Bound: 2.5},
	{Color: Yellow, Op: OpGE, Bound: 1.5},
	{Color: Red, Op: OpLT, Bound: 1.5},
}
