package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-prism/infrastructure/backend"
	"github.com/ahrav/go-prism/internal/application"
)

func (a *app) listCommand() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configured models.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := application.NewConfigLoader(application.WithLoaderLogger(a.logger))
			if err != nil {
				return err
			}
			models, err := loader.ListModels(cmd.Context(), a.settings.ConfigDir)
			if err != nil {
				if len(models) == 0 {
					return err
				}
				a.logger.Warn("skipping invalid model configs", "error", err)
			}
			models = application.FilterByTag(models, tag)
			if len(models) == 0 {
				fmt.Fprintln(a.out, "No models configured.")
				return nil
			}

			table := tablewriter.NewWriter(a.out)
			table.Header([]string{"Model ID", "Name", "Version", "Tags"})
			var data [][]string
			for _, m := range models {
				tags := strings.Join(m.Tags, ", ")
				if tags == "" {
					tags = "—"
				}
				data = append(data, []string{m.ID, m.Name, m.Version, tags})
			}
			if err := table.Bulk(data); err != nil {
				return err
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only list models with this tag")
	return cmd
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate all model configurations.",
		Long: `Load every YAML file under <config-dir>/models with full validation:
schema, thresholds, aggregation and that every local metric id is registered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			loader, err := a.loader(reg)
			if err != nil {
				return err
			}

			dir := application.ModelsDir(a.settings.ConfigDir)
			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("%s directory not found: %w", dir, err)
			}
			var names []string
			for _, e := range entries {
				ext := strings.ToLower(filepath.Ext(e.Name()))
				if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)

			type failure struct{ file, msg string }
			var failures []failure
			for _, name := range names {
				if _, err := loader.LoadFromFile(cmd.Context(), filepath.Join(dir, name)); err != nil {
					failures = append(failures, failure{name, err.Error()})
					fmt.Fprintf(a.out, "  [FAIL] %s\n", name)
					continue
				}
				fmt.Fprintf(a.out, "  [OK] %s\n", name)
			}

			if len(failures) == 0 {
				fmt.Fprintln(a.out, "\nAll configs valid.")
				return nil
			}
			fmt.Fprintf(a.out, "\nFound %d error(s):\n", len(failures))
			for _, f := range failures {
				fmt.Fprintf(a.out, "  %s: %s\n", f.file, f.msg)
			}
			return fmt.Errorf("%d of %d model configs are invalid", len(failures), len(names))
		},
	}
}

func (a *app) metricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List the registered metrics and configured backends.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(a.out)
			table.Header([]string{"Metric ID", "Source"})
			var data [][]string
			for _, id := range reg.IDs() {
				data = append(data, []string{id, "local"})
			}
			if err := table.Bulk(data); err != nil {
				return err
			}
			if err := table.Render(); err != nil {
				return err
			}

			names := sortedBackendNames(a.settings.Backends)
			if len(names) == 0 {
				return nil
			}
			fmt.Fprintln(a.out, "\nBackends:")
			for _, name := range names {
				fmt.Fprintf(a.out, "  %s  %s\n", name, a.settings.Backends[name].BaseURL)
			}
			return nil
		},
	}
}

func sortedBackendNames(m map[string]backend.Config) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
