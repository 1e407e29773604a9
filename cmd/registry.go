package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/peaking-cli/internal/model"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the peaked-cities registry",
	Long:  "Commands for listing and editing the cities already confirmed as peaked. Runs re-check these cities and keep them peaked while their emissions stay near the peak.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("registry")
	},
}

// -- registry list --

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered peaked cities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListPeaked(ctx)
		if err != nil {
			return eris.Wrap(err, "registry list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "Registry is empty.")
			return nil
		}
		formatRegistry(cmd.OutOrStdout(), entries)
		return nil
	},
}

// -- registry add --

var registryAddCmd = &cobra.Command{
	Use:   "add <city>",
	Short: "Add or update a peaked city",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		label, _ := cmd.Flags().GetString("source")
		source, ok := model.ParseDataSource(label)
		if !ok {
			return eris.Errorf("registry add: unknown data source %q", label)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.PutPeaked(ctx, model.RegistryEntry{City: args[0], Source: source, AddedBy: "cli"}); err != nil {
			return eris.Wrap(err, "registry add")
		}
		zap.L().Info("registry entry saved", zap.String("city", args[0]), zap.String("source", string(source)))
		return nil
	},
}

// -- registry remove --

var registryRemoveCmd = &cobra.Command{
	Use:   "remove <city>",
	Short: "Remove a city from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.RemovePeaked(ctx, args[0]); err != nil {
			return eris.Wrap(err, "registry remove")
		}
		zap.L().Info("registry entry removed", zap.String("city", args[0]))
		return nil
	},
}

// -- registry import --

var registryImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import peaked cities from a YAML file",
	Long:  "Reads a YAML list of {city, source} entries. Cities already registered are kept unless --replace is set.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		entries, err := readRegistryFile(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		replace, _ := cmd.Flags().GetBool("replace")
		if replace {
			for _, e := range entries {
				if err := st.PutPeaked(ctx, e); err != nil {
					return eris.Wrapf(err, "registry import: %s", e.City)
				}
			}
			zap.L().Info("registry import complete", zap.Int("saved", len(entries)))
			return nil
		}

		added, err := st.AppendPeaked(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "registry import")
		}
		zap.L().Info("registry import complete",
			zap.Int("entries", len(entries)),
			zap.Int("added", added),
			zap.Int("skipped", len(entries)-added),
		)
		return nil
	},
}

// -- registry export --

var registryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the registry as YAML to stdout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListPeaked(ctx)
		if err != nil {
			return eris.Wrap(err, "registry export")
		}
		return writeRegistryYAML(cmd.OutOrStdout(), entries)
	},
}

// registryFileEntry is one entry of a registry YAML file. Source labels are
// matched case-insensitively.
type registryFileEntry struct {
	City    string `yaml:"city"`
	Source  string `yaml:"source"`
	AddedBy string `yaml:"added_by,omitempty"`
}

// readRegistryFile parses a registry YAML file. Every problem is reported
// with its entry position.
func readRegistryFile(path string) ([]model.RegistryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read registry file %s", path)
	}
	return parseRegistryYAML(data)
}

func parseRegistryYAML(data []byte) ([]model.RegistryEntry, error) {
	var raw []registryFileEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "parse registry yaml")
	}

	entries := make([]model.RegistryEntry, 0, len(raw))
	for i, r := range raw {
		if r.City == "" {
			return nil, eris.Errorf("registry entry %d: city is required", i+1)
		}
		source, ok := model.ParseDataSource(r.Source)
		if !ok {
			return nil, eris.Errorf("registry entry %d (%s): unknown data source %q", i+1, r.City, r.Source)
		}
		addedBy := r.AddedBy
		if addedBy == "" {
			addedBy = "import"
		}
		entries = append(entries, model.RegistryEntry{City: r.City, Source: source, AddedBy: addedBy})
	}
	return entries, nil
}

func writeRegistryYAML(out io.Writer, entries []model.RegistryEntry) error {
	raw := make([]registryFileEntry, len(entries))
	for i, e := range entries {
		raw[i] = registryFileEntry{City: e.City, Source: string(e.Source), AddedBy: e.AddedBy}
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return eris.Wrap(err, "encode registry yaml")
	}
	return enc.Close()
}

// formatRegistry writes a tabular list of registry entries to w.
func formatRegistry(out io.Writer, entries []model.RegistryEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tSOURCE\tADDED_BY\tADDED")
	_, _ = fmt.Fprintln(w, "----\t------\t--------\t-----")
	for _, e := range entries {
		added := "-"
		if !e.AddedAt.IsZero() {
			added = e.AddedAt.Format("2006-01-02")
		}
		addedBy := e.AddedBy
		if addedBy == "" {
			addedBy = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.City, e.Source, truncateID(addedBy), added)
	}
	_ = w.Flush()
}

func init() {
	registryAddCmd.Flags().String("source", "", "data source the peak was established on (e.g. City_GPC)")
	_ = registryAddCmd.MarkFlagRequired("source")
	registryImportCmd.Flags().Bool("replace", false, "overwrite the source of cities already registered")

	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryAddCmd)
	registryCmd.AddCommand(registryRemoveCmd)
	registryCmd.AddCommand(registryImportCmd)
	registryCmd.AddCommand(registryExportCmd)
	rootCmd.AddCommand(registryCmd)
}
