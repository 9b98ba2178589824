package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-prism/infrastructure/dataset"
	"github.com/ahrav/go-prism/infrastructure/render"
	"github.com/ahrav/go-prism/internal/application"
	"github.com/ahrav/go-prism/internal/domain"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatTerminal = "terminal"
)

// renderFlags are shared by render and render-all.
type renderFlags struct {
	format  string
	date    string
	context map[string]string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", FormatMarkdown, "output format: markdown or terminal")
	cmd.Flags().StringVar(&f.date, "date", "", "report date (YYYY-MM-DD), default today")
	cmd.Flags().StringToStringVar(&f.context, "context", nil, "backend context as key=value pairs")
}

func (f *renderFlags) validate() error {
	switch f.format {
	case FormatMarkdown, FormatTerminal:
		return nil
	default:
		return fmt.Errorf("invalid format %q: want %s or %s", f.format, FormatMarkdown, FormatTerminal)
	}
}

func (f *renderFlags) reportDate() (time.Time, error) {
	if f.date == "" {
		return time.Now(), nil
	}
	d, err := time.Parse(time.DateOnly, f.date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", f.date)
	}
	return d, nil
}

// write renders sc to w in the selected format.
func (a *app) write(w io.Writer, sc domain.Scorecard, flags *renderFlags, date time.Time) error {
	if flags.format == FormatTerminal {
		return render.WriteTerminal(w, sc, render.TerminalOptions{NoColor: a.settings.NoColor})
	}
	var b strings.Builder
	b.WriteString(render.Header(sc, date))
	b.WriteString("\n## Scorecard\n\n")
	b.WriteString(render.Scorecard(sc))
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// loadData opens path, or the model's dataset in the data directory.
func (a *app) loadData(ctx context.Context, path, modelID string) (*domain.Dataset, error) {
	if path == "" {
		found, err := dataset.Find(a.settings.DataDir, modelID)
		if err != nil {
			return nil, err
		}
		path = found
	}
	a.logger.Debug("loading dataset", "model_id", modelID, "path", path)
	return dataset.Open(ctx, path)
}

func (a *app) renderCommand() *cobra.Command {
	var (
		flags    renderFlags
		dataPath string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "render <model-id>",
		Short: "Compute and render one model's scorecard.",
		Long: `Compute every metric of the model, color it and write the scorecard.

The dataset is read from --data, or from <data-dir>/<model-id> with a
.parquet, .csv, .tsv, .sqlite or .db extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			date, err := flags.reportDate()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			reg, err := a.registry()
			if err != nil {
				return err
			}
			loader, err := a.loader(reg)
			if err != nil {
				return err
			}
			model, err := loader.LoadModel(ctx, a.settings.ConfigDir, args[0])
			if err != nil {
				return err
			}
			data, err := a.loadData(ctx, dataPath, model.ID)
			if err != nil {
				return err
			}
			resolver, err := a.resolver(reg)
			if err != nil {
				return err
			}

			report := application.NewReport(model, resolver, a.reportOptions()...)
			if err := report.ComputeAll(ctx, data, flags.context); err != nil {
				return fmt.Errorf("render %s: %w", model.ID, err)
			}
			sc, err := report.Scorecard()
			if err != nil {
				return err
			}

			if output == "" {
				return a.write(a.out, sc, &flags, date)
			}
			return a.writeFile(output, sc, &flags, date)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&dataPath, "data", "", "dataset file (csv, tsv, parquet, sqlite)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func (a *app) writeFile(path string, sc domain.Scorecard, flags *renderFlags, date time.Time) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return a.write(f, sc, flags, date)
}

func (a *app) renderAllCommand() *cobra.Command {
	var (
		flags renderFlags
		tag   string
	)

	cmd := &cobra.Command{
		Use:   "render-all",
		Short: "Render every configured model.",
		Long: `Render every model under <config-dir>/models, optionally only those carrying
--tag. Markdown scorecards are written to <output-dir>/<model-id>.md; the
terminal format prints each scorecard to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			date, err := flags.reportDate()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			reg, err := a.registry()
			if err != nil {
				return err
			}
			loader, err := a.loader(reg)
			if err != nil {
				return err
			}
			models, err := loader.ListModels(ctx, a.settings.ConfigDir)
			if len(models) == 0 && err != nil {
				return err
			}
			if err != nil {
				a.logger.Warn("skipping invalid model configs", "error", err)
			}
			models = application.FilterByTag(models, tag)
			resolver, err := a.resolver(reg)
			if err != nil {
				return err
			}

			// Models whose config or dataset cannot be loaded fail before
			// the batch; their outcomes are merged back in catalogue order.
			outcomes := make([]application.RenderOutcome, len(models))
			var (
				jobs  []application.RenderJob
				slots []int
			)
			for i, m := range models {
				outcomes[i].ModelID = m.ID
				spec, err := loader.LoadFromFile(ctx, m.Path)
				if err != nil {
					outcomes[i].Err = err
					continue
				}
				data, err := a.loadData(ctx, "", spec.ID)
				if err != nil {
					outcomes[i].Err = err
					continue
				}
				jobs = append(jobs, application.RenderJob{Model: spec, Data: data, Context: flags.context})
				slots = append(slots, i)
			}

			results, _ := application.RenderAll(ctx, resolver, jobs,
				application.WithConcurrency(a.settings.Concurrency),
				application.WithBatchLogger(a.logger),
				application.WithReportOptions(a.reportOptions()...),
			)
			for j, res := range results {
				outcomes[slots[j]] = res
			}

			failed := 0
			for _, o := range outcomes {
				if o.OK() {
					if err := a.emit(o, &flags, date); err != nil {
						o.Err = err
					}
				}
				if o.OK() {
					fmt.Fprintf(a.out, "  [OK] %s\n", o.ModelID)
					continue
				}
				failed++
				fmt.Fprintf(a.out, "  [FAIL: %v] %s\n", o.Err, o.ModelID)
			}
			fmt.Fprintf(a.out, "\n%d/%d models rendered successfully.\n", len(outcomes)-failed, len(outcomes))

			if failed > 0 {
				return fmt.Errorf("%d of %d models failed to render", failed, len(outcomes))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&tag, "tag", "", "only render models with this tag")
	cmd.Flags().String("output-dir", DefaultOutputDir, "directory for markdown scorecards")
	cmd.Flags().Int("concurrency", DefaultConcurrency, "models computed in parallel")
	_ = a.v.BindPFlag("output_dir", cmd.Flags().Lookup("output-dir"))
	_ = a.v.BindPFlag("concurrency", cmd.Flags().Lookup("concurrency"))
	return cmd
}

// emit writes one successful batch outcome.
func (a *app) emit(o application.RenderOutcome, flags *renderFlags, date time.Time) error {
	if flags.format == FormatTerminal {
		return a.write(a.out, *o.Scorecard, flags, date)
	}
	return a.writeFile(filepath.Join(a.settings.OutputDir, o.ModelID+".md"), *o.Scorecard, flags, date)
}
