package application

import (
	"bytes"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-prism/internal/domain"
)

// ModelConfig is the YAML document that describes one model: its identity,
// the metrics to compute and how their colors roll up.
// Use ModelConfig through ConfigLoader, which decodes it strictly, validates
// it and converts it to a domain.ModelSpec.
type ModelConfig struct {
	// ModelID identifies the model and names its configuration file.
	ModelID string `yaml:"model_id" validate:"required,identifier,max=100"`
	// ModelName is the human-readable model name.
	ModelName string `yaml:"model_name" validate:"max=255"`
	// ModelVersion is the model's semantic version.
	ModelVersion string `yaml:"model_version" validate:"omitempty,semver"`
	// Developer is the primary model developer or owning team.
	Developer string `yaml:"primary_model_developer" validate:"max=255"`
	// RepoURL points at the model's source repository.
	RepoURL string `yaml:"model_repo_url" validate:"omitempty,url"`
	// Tags group models for batch rendering.
	Tags []string `yaml:"tags,omitempty" validate:"max=20,dive,min=1,max=50"`
	// Metrics are the configured metrics in declaration order.
	Metrics MetricsConfig `yaml:"metrics" validate:"required,min=1,dive"`
	// Aggregation configures the sector and final roll-up.
	Aggregation AggregationConfig `yaml:"aggregation"`
}

// MetricConfig configures one metric. Its key is the YAML mapping key under
// which it is declared.
type MetricConfig struct {
	// Key is filled from the enclosing mapping key.
	Key string `yaml:"-" validate:"required,identifier"`
	// Sector is the grouping label used for sector aggregation.
	Sector string `yaml:"sector" validate:"required,identifier"`
	// MetricID is the registry or backend id of the computation.
	MetricID string `yaml:"metric_id" validate:"required,min=1,max=100"`
	// Source is "local" (default) or the name of a backend.
	Source string `yaml:"source,omitempty" validate:"omitempty,identifier"`
	// Inputs are passed to the metric function unchanged.
	Inputs map[string]any `yaml:"inputs,omitempty"`
	// ColorField names the scalar in the result used for evaluation.
	ColorField string `yaml:"color_field" validate:"required"`
	// Color holds the ordered threshold rules.
	Color ColorRules `yaml:"color" validate:"required,min=1,dive"`
}

// AggregationConfig groups the two aggregation layers.
type AggregationConfig struct {
	Sector SectorConfig `yaml:"sector"`
	Final  FinalConfig  `yaml:"final"`
}

// SectorConfig configures sector aggregation. At the top level it is the
// default for every sector; Overrides replace it for named sectors.
type SectorConfig struct {
	// Method is worst_color (default), best_color, majority or weighted_average.
	Method string `yaml:"method,omitempty" validate:"omitempty,oneof=worst_color best_color majority weighted_average"`
	// Weights maps metric keys to weights for weighted_average.
	Weights map[string]float64 `yaml:"weights,omitempty" validate:"omitempty,dive,gte=0"`
	// Thresholds convert a weighted score back to a color.
	Thresholds ColorRules `yaml:"thresholds,omitempty" validate:"omitempty,dive"`
	// Overrides maps sector names to their own configuration.
	Overrides map[string]SectorConfig `yaml:"overrides,omitempty" validate:"omitempty,dive"`
}

// FinalConfig configures final aggregation.
type FinalConfig struct {
	// Method is worst_color (default) or matrix.
	Method string `yaml:"method,omitempty" validate:"omitempty,oneof=worst_color matrix"`
	// Dimensions are the sectors folded by the matrix, in order.
	Dimensions []string `yaml:"dimensions,omitempty" validate:"omitempty,dive,identifier"`
	// Matrix is the row color -> column color -> result color table.
	Matrix map[string]map[string]string `yaml:"matrix,omitempty"`
}

// ColorRule is one "color: expression" threshold entry.
type ColorRule struct {
	Color string `validate:"required,ragcolor"`
	Expr  string `validate:"required,threshold"`
}

// ColorRules is an ordered list of threshold entries. In YAML it is a
// mapping from color to expression whose key order is preserved.
type ColorRules []ColorRule

// UnmarshalYAML decodes a color mapping keeping declaration order.
func (c *ColorRules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: color rules must be a mapping", node.Line)
	}
	rules := make(ColorRules, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: threshold for %q must be a string", v.Line, k.Value)
		}
		if _, dup := seen[k.Value]; dup {
			return fmt.Errorf("line %d: duplicate color %q", k.Line, k.Value)
		}
		seen[k.Value] = struct{}{}
		rules = append(rules, ColorRule{Color: k.Value, Expr: v.Value})
	}
	*c = rules
	return nil
}

// MarshalYAML encodes the rules as an ordered mapping.
func (c ColorRules) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, r := range c {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: r.Color},
			&yaml.Node{Kind: yaml.ScalarNode, Value: r.Expr, Style: yaml.DoubleQuotedStyle},
		)
	}
	return node, nil
}

// Thresholds converts the rules to domain thresholds.
func (c ColorRules) Thresholds() (domain.Thresholds, error) {
	out := make(domain.Thresholds, 0, len(c))
	for _, r := range c {
		color, err := domain.ParseColor(r.Color)
		if err != nil {
			return nil, err
		}
		rule, err := domain.ParseRule(color, r.Expr)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// MetricsConfig is the ordered list of metrics. In YAML it is a mapping
// from metric key to metric configuration whose key order is preserved.
type MetricsConfig []MetricConfig

// UnmarshalYAML decodes the metrics mapping keeping declaration order.
// Each entry is decoded strictly so unknown fields are rejected.
func (m *MetricsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: metrics must be a mapping of key to metric", node.Line)
	}
	out := make(MetricsConfig, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if _, dup := seen[k.Value]; dup {
			return fmt.Errorf("line %d: duplicate metric key %q", k.Line, k.Value)
		}
		seen[k.Value] = struct{}{}

		var mc MetricConfig
		if err := decodeStrict(v, &mc); err != nil {
			return fmt.Errorf("metric %q: %w", k.Value, err)
		}
		mc.Key = k.Value
		out = append(out, mc)
	}
	*m = out
	return nil
}

// MarshalYAML encodes the metrics as an ordered mapping.
func (m MetricsConfig) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, mc := range m {
		var v yaml.Node
		if err := v.Encode(mc); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: mc.Key}, &v)
	}
	return node, nil
}

// decodeStrict decodes node into out, rejecting unknown fields.
// yaml.Node.Decode does not carry the decoder's KnownFields setting, so the
// node is re-encoded and decoded with a strict decoder.
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Spec converts a validated configuration into a domain.ModelSpec.
// Spec returns an error if a color, threshold or method cannot be converted.
func (c *ModelConfig) Spec() (domain.ModelSpec, error) {
	spec := domain.ModelSpec{
		ID:        c.ModelID,
		Name:      c.ModelName,
		Version:   c.ModelVersion,
		Developer: c.Developer,
		RepoURL:   c.RepoURL,
		Tags:      append([]string(nil), c.Tags...),
		Metrics:   make([]domain.MetricSpec, 0, len(c.Metrics)),
	}

	for _, mc := range c.Metrics {
		ts, err := mc.Color.Thresholds()
		if err != nil {
			return domain.ModelSpec{}, fmt.Errorf("metric %q: %w", mc.Key, err)
		}
		spec.Metrics = append(spec.Metrics, domain.MetricSpec{
			Key:        mc.Key,
			Sector:     mc.Sector,
			MetricID:   mc.MetricID,
			Source:     domain.ParseSource(mc.Source),
			Inputs:     maps.Clone(domain.Inputs(mc.Inputs)),
			ColorField: mc.ColorField,
			Thresholds: ts,
		})
	}

	def, err := c.Aggregation.Sector.aggregation()
	if err != nil {
		return domain.ModelSpec{}, fmt.Errorf("sector aggregation: %w", err)
	}
	spec.Sectors = domain.SectorPolicy{Default: def}
	if len(c.Aggregation.Sector.Overrides) > 0 {
		spec.Sectors.Overrides = make(map[string]domain.SectorAggregation, len(c.Aggregation.Sector.Overrides))
		for name, o := range c.Aggregation.Sector.Overrides {
			agg, err := o.aggregation()
			if err != nil {
				return domain.ModelSpec{}, fmt.Errorf("sector override %q: %w", name, err)
			}
			spec.Sectors.Overrides[name] = agg
		}
	}

	final, err := c.Aggregation.Final.aggregation()
	if err != nil {
		return domain.ModelSpec{}, fmt.Errorf("final aggregation: %w", err)
	}
	spec.Final = final
	return spec, nil
}

func (s SectorConfig) aggregation() (domain.SectorAggregation, error) {
	method := domain.SectorMethod(s.Method)
	if method == "" {
		method = domain.SectorWorst
	}
	agg := domain.SectorAggregation{Method: method, Weights: s.Weights}
	if len(s.Thresholds) > 0 {
		ts, err := s.Thresholds.Thresholds()
		if err != nil {
			return domain.SectorAggregation{}, err
		}
		agg.Thresholds = ts
	}
	return agg, nil
}

func (f FinalConfig) aggregation() (domain.FinalAggregation, error) {
	method := domain.FinalMethod(f.Method)
	if method == "" {
		method = domain.FinalWorst
	}
	agg := domain.FinalAggregation{Method: method, Dimensions: append([]string(nil), f.Dimensions...)}
	if len(f.Matrix) == 0 {
		return agg, nil
	}

	agg.Matrix = make(domain.Matrix, len(f.Matrix))
	for _, rowName := range sortedKeys(f.Matrix) {
		row, err := domain.ParseColor(rowName)
		if err != nil {
			return domain.FinalAggregation{}, fmt.Errorf("matrix row: %w", err)
		}
		if agg.Matrix[row] == nil {
			agg.Matrix[row] = make(map[domain.Color]domain.Color, len(domain.AllColors))
		}
		cols := f.Matrix[rowName]
		for _, colName := range sortedKeys(cols) {
			col, err := domain.ParseColor(colName)
			if err != nil {
				return domain.FinalAggregation{}, fmt.Errorf("matrix[%s] column: %w", rowName, err)
			}
			res, err := domain.ParseColor(cols[colName])
			if err != nil {
				return domain.FinalAggregation{}, fmt.Errorf("matrix[%s][%s]: %w", rowName, colName, err)
			}
			if _, dup := agg.Matrix[row][col]; dup {
				return domain.FinalAggregation{}, fmt.Errorf("matrix[%s][%s]: entry [%s][%s] is defined twice", rowName, colName, row, col)
			}
			agg.Matrix[row][col] = res
		}
	}
	return agg, nil
}
