// Package cli implements the prism command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/ahrav/go-prism/infrastructure/backend"
	"github.com/ahrav/go-prism/infrastructure/metrics"
	"github.com/ahrav/go-prism/infrastructure/middleware"
	"github.com/ahrav/go-prism/internal/application"
	"github.com/ahrav/go-prism/internal/ports"
)

// All linker flags are set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Defaults for settings not given by file, environment or flags.
const (
	DefaultConfigDir   = "config"
	DefaultDataDir     = "data"
	DefaultOutputDir   = "_output"
	DefaultLogLevel    = "warn"
	DefaultLogFormat   = "text"
	DefaultConcurrency = application.DefaultBatchConcurrency
)

// Settings is the resolved application configuration.
type Settings struct {
	ConfigDir   string `mapstructure:"config_dir"`
	DataDir     string `mapstructure:"data_dir"`
	OutputDir   string `mapstructure:"output_dir"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	NoColor     bool   `mapstructure:"no_color"`
	Concurrency int    `mapstructure:"concurrency"`
	// MetricsFile, when set, receives the Prometheus text exposition of the
	// run after each command.
	MetricsFile string                    `mapstructure:"metrics_file"`
	Backends    map[string]backend.Config `mapstructure:"backends"`
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v        *viper.Viper
	out      io.Writer
	errOut   io.Writer
	settings Settings
	logger   *slog.Logger
	promReg  *prometheus.Registry
	metrics  *middleware.PrometheusMetrics
}

// NewRootCommand builds the prism command tree writing to out and errOut.
// Each call owns its configuration, so commands can be built repeatedly.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "prism",
		Short:         "Compute RAG health scorecards for monitored models.",
		Long:          `Prism evaluates each model's configured metrics, colors them against thresholds and rolls the colors up into sector and overall ratings.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.flushMetrics()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is ./.prism.yaml)")
	flags.String("config-dir", DefaultConfigDir, "directory holding models/<id>.yaml")
	flags.String("data-dir", DefaultDataDir, "directory holding <model-id> datasets")
	flags.String("log-level", DefaultLogLevel, "log level: debug, info, warn, error")
	flags.String("log-format", DefaultLogFormat, "log format: text or json")
	flags.Bool("no-color", false, "disable colored terminal output")
	flags.String("metrics-file", "", "write Prometheus metrics to this file after the run")

	for key, flag := range map[string]string{
		"config":       "config",
		"config_dir":   "config-dir",
		"data_dir":     "data-dir",
		"log_level":    "log-level",
		"log_format":   "log-format",
		"no_color":     "no-color",
		"metrics_file": "metrics-file",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	a.v.SetEnvPrefix("PRISM")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	a.v.SetDefault("output_dir", DefaultOutputDir)
	a.v.SetDefault("concurrency", DefaultConcurrency)

	root.AddCommand(
		a.renderCommand(),
		a.renderAllCommand(),
		a.listCommand(),
		a.validateCommand(),
		a.metricsCommand(),
		versionCommand(),
	)
	return root
}

// setup reads the config file and builds the logger and collectors.
func (a *app) setup() error {
	if configFile := a.v.GetString("config"); configFile != "" {
		a.v.SetConfigFile(configFile)
	} else {
		a.v.SetConfigName(".prism")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		a.v.AddConfigPath("$HOME")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := a.v.Unmarshal(&a.settings); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	logger, err := newLogger(a.errOut, a.settings.LogLevel, a.settings.LogFormat)
	if err != nil {
		return err
	}
	a.logger = logger

	a.promReg = prometheus.NewRegistry()
	a.metrics = middleware.NewPrometheusMetrics(a.promReg)
	return nil
}

// newLogger builds a slog logger from the level and format names.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: want text or json", format)
	}
}

// flushMetrics writes the run's metrics when a metrics file is configured.
func (a *app) flushMetrics() error {
	if a.settings.MetricsFile == "" || a.promReg == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.settings.MetricsFile, a.promReg); err != nil {
		return ports.NewMetricsError(a.settings.MetricsFile, "write_textfile", err)
	}
	return nil
}

// registry returns a metric registry holding the built-in metrics.
func (a *app) registry() (*application.MetricRegistry, error) {
	reg := application.NewMetricRegistry(application.WithRegistryLogger(a.logger))
	if err := metrics.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("failed to register built-in metrics: %w", err)
	}
	return reg, nil
}

// loader returns a config loader validating metric ids against reg.
func (a *app) loader(reg *application.MetricRegistry) (*application.ConfigLoader, error) {
	return application.NewConfigLoader(
		application.WithMetricLookup(reg),
		application.WithLoaderLogger(a.logger),
	)
}

// resolver wires the configured backends behind the standard middleware.
func (a *app) resolver(reg *application.MetricRegistry) (*application.Resolver, error) {
	backends, err := backend.NewRegistryFromConfigs(a.settings.Backends, backend.Observability{
		Collector:      a.metrics,
		BreakerMetrics: a.metrics,
		Tracing:        true,
	})
	if err != nil {
		return nil, err
	}
	return application.NewResolver(reg, backends.Backends()...), nil
}

// reportOptions returns the observability options applied to every report.
func (a *app) reportOptions() []application.ReportOption {
	return []application.ReportOption{
		application.WithLogger(a.logger),
		application.WithObserver(middleware.NewOTelComputeObserver(a.metrics)),
		application.WithTracer(otel.Tracer("github.com/ahrav/go-prism/cli")),
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of prism.",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("prism CLI\n")
			cmd.Printf("  Version: %s\n", version)
			cmd.Printf("  Commit:  %s\n", commit)
			cmd.Printf("  Built:   %s\n", date)
		},
	}
}
