package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-prism/infrastructure/dataset"
	"github.com/ahrav/go-prism/internal/ports"
	"github.com/ahrav/go-prism/internal/testutils"
)

const creditModel = `
model_id: credit_v1
model_name: Credit Risk Scorecard
model_version: 1.2.0
tags: [credit]
metrics:
  rank_ordering:
    sector: discriminatory_power
    metric_id: gini_coefficient
    color_field: gini_value
    color:
      green: ">= 0.4"
      yellow: ">= 0.3"
      red: "< 0.3"
  psi:
    sector: stability
    metric_id: psi_calculator
    color_field: psi_value
    color:
      red: ">= 0.25"
      yellow: ">= 0.1"
      green: "< 0.1"
`

const fraudModel = `
model_id: fraud
model_name: Fraud Detection
model_version: 0.3.1
tags: [fraud]
metrics:
  ks:
    sector: discrimination
    metric_id: ks_statistic
    color_field: ks_value
    color: {green: ">= 0.3", red: "< 0.3"}
`

// project is a temporary prism project directory.
type project struct {
	root   string
	config string
}

func newProject(t *testing.T, settings string) project {
	t.Helper()
	root := t.TempDir()
	p := project{root: root, config: filepath.Join(root, ".prism.yaml")}

	require.NoError(t, os.MkdirAll(filepath.Join(root, "config", "models"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	settings = "config_dir: " + filepath.Join(root, "config") + "\n" +
		"data_dir: " + filepath.Join(root, "data") + "\n" +
		"output_dir: " + filepath.Join(root, "_output") + "\n" + settings
	require.NoError(t, os.WriteFile(p.config, []byte(settings), 0o600))
	return p
}

func (p project) addModel(t *testing.T, id, yaml string, withData bool) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(p.root, "config", "models", id+".yaml"), []byte(yaml), 0o600))
	if !withData {
		return
	}
	f, err := os.Create(filepath.Join(p.root, "data", id+".csv"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, dataset.WriteCSV(f, testutils.ScoreDataset(400, 7)))
}

func (p project) run(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := NewRootCommand(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", p.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	p := newProject(t, "")
	out, err := p.run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "prism CLI")
	assert.Contains(t, out, "Version: dev")
}

func TestRenderCommand(t *testing.T) {
	p := newProject(t, "")
	p.addModel(t, "credit_v1", creditModel, true)

	t.Run("markdown to stdout", func(t *testing.T) {
		out, err := p.run("render", "credit_v1", "--date", "2024-06-30")
		require.NoError(t, err)
		assert.Contains(t, out, "# Credit Risk Scorecard")
		assert.Contains(t, out, "**Report Date:** 2024-06-30")
		assert.Contains(t, out, "| Rank Ordering | Discriminatory Power |")
		assert.Contains(t, out, "| **Overall Model Rating** |")
	})

	t.Run("terminal", func(t *testing.T) {
		out, err := p.run("--no-color", "render", "credit_v1", "--format", "terminal")
		require.NoError(t, err)
		assert.Contains(t, out, "Credit Risk Scorecard (credit_v1) v1.2.0")
		assert.Contains(t, out, "Overall model rating: ")
		assert.NotContains(t, out, "\x1b[")
	})

	t.Run("output file", func(t *testing.T) {
		path := filepath.Join(p.root, "out", "credit.md")
		out, err := p.run("render", "credit_v1", "-o", path)
		require.NoError(t, err)
		assert.Empty(t, out)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "## Scorecard")
	})

	t.Run("explicit data path", func(t *testing.T) {
		out, err := p.run("render", "credit_v1", "--data", filepath.Join(p.root, "data", "credit_v1.csv"))
		require.NoError(t, err)
		assert.Contains(t, out, "Overall Model Rating")
	})
}

func TestRenderCommandErrors(t *testing.T) {
	p := newProject(t, "")
	p.addModel(t, "credit_v1", creditModel, false)

	tests := []struct {
		name    string
		args    []string
		wantIs  error
		wantMsg string
	}{
		{name: "unknown model", args: []string{"render", "missing"}, wantIs: ports.ErrConfigNotFound},
		{name: "no dataset", args: []string{"render", "credit_v1"}, wantIs: dataset.ErrNotFound},
		{name: "bad format", args: []string{"render", "credit_v1", "--format", "pdf"}, wantMsg: "invalid format"},
		{name: "bad date", args: []string{"render", "credit_v1", "--date", "30/06/2024"}, wantMsg: "invalid date"},
		{name: "missing argument", args: []string{"render"}, wantMsg: "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.run(tt.args...)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRenderAllCommand(t *testing.T) {
	p := newProject(t, "")
	p.addModel(t, "credit_v1", creditModel, true)
	p.addModel(t, "fraud", fraudModel, false)

	out, err := p.run("render-all", "--date", "2024-06-30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 models failed")
	assert.Contains(t, out, "  [OK] credit_v1\n")
	assert.Contains(t, out, "] fraud\n")
	assert.Contains(t, out, "1/2 models rendered successfully.")

	data, err := os.ReadFile(filepath.Join(p.root, "_output", "credit_v1.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "**Report Date:** 2024-06-30")
	assert.NoFileExists(t, filepath.Join(p.root, "_output", "fraud.md"))

	out, err = p.run("render-all", "--tag", "credit", "--output-dir", filepath.Join(p.root, "tagged"))
	require.NoError(t, err)
	assert.Contains(t, out, "1/1 models rendered successfully.")
	assert.FileExists(t, filepath.Join(p.root, "tagged", "credit_v1.md"))
}

func TestListCommand(t *testing.T) {
	p := newProject(t, "")

	out, err := p.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "No models configured.")

	p.addModel(t, "credit_v1", creditModel, false)
	p.addModel(t, "fraud", fraudModel, false)

	out, err = p.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "credit_v1")
	assert.Contains(t, out, "Fraud Detection")
	assert.Contains(t, out, "0.3.1")

	out, err = p.run("list", "--tag", "fraud")
	require.NoError(t, err)
	assert.Contains(t, out, "fraud")
	assert.NotContains(t, out, "credit_v1")
}

func TestValidateCommand(t *testing.T) {
	p := newProject(t, "")
	p.addModel(t, "credit_v1", creditModel, false)

	out, err := p.run("validate")
	require.NoError(t, err)
	assert.Contains(t, out, "  [OK] credit_v1.yaml")
	assert.Contains(t, out, "All configs valid.")

	p.addModel(t, "typo", `
model_id: typo
metrics:
  gini:
    sector: rank
    metric_id: gini_coeficient
    color_field: gini_value
    color: {green: ">= 0.4", red: "< 0.4"}
`, false)

	out, err = p.run("validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 model configs are invalid")
	assert.Contains(t, out, "  [FAIL] typo.yaml")
	assert.Contains(t, out, "Found 1 error(s):")
	assert.Contains(t, out, "gini_coefficient", "unknown id error suggests the registered one")
}

func TestMetricsCommand(t *testing.T) {
	p := newProject(t, `
backends:
  risk-engine:
    base_url: http://risk-engine.internal/api
    timeout: 5s
    rate_limit: 2
`)

	out, err := p.run("metrics")
	require.NoError(t, err)
	for _, id := range []string{"gini_coefficient", "ks_statistic", "model_accuracy", "precision_recall", "psi_calculator", "csi_calculator"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "Backends:")
	assert.Contains(t, out, "risk-engine  http://risk-engine.internal/api")
}

func TestInvalidBackendConfig(t *testing.T) {
	p := newProject(t, `
backends:
  broken:
    base_url: not a url
`)
	p.addModel(t, "credit_v1", creditModel, true)

	_, err := p.run("render", "credit_v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid backend config")
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	p := newProject(t, "")
	other := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(other, "models"), 0o755))
	t.Setenv("PRISM_CONFIG_DIR", other)

	p.addModel(t, "credit_v1", creditModel, false)
	out, err := p.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "No models configured.")
}

func TestMetricsFile(t *testing.T) {
	p := newProject(t, "")
	p.addModel(t, "credit_v1", creditModel, true)
	path := filepath.Join(p.root, "metrics.prom")

	_, err := p.run("render", "credit_v1", "--metrics-file", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "prism_reports_total")
	assert.Contains(t, string(data), `model="credit_v1"`)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
		debug         bool
	}{
		{level: "debug", format: "text", debug: true},
		{level: "INFO", format: "json"},
		{level: "warn", format: ""},
		{level: "loud", format: "text", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.debug, logger.Enabled(context.Background(), slog.LevelDebug))
		})
	}
}

func TestMetricsFileError(t *testing.T) {
	p := newProject(t, "")
	_, err := p.run("version", "--metrics-file", filepath.Join(p.root, "missing", "dir", "metrics.prom"))
	require.Error(t, err)
	var metricsErr *ports.MetricsError
	require.ErrorAs(t, err, &metricsErr)
	assert.Equal(t, "write_textfile", metricsErr.Operation)
}
