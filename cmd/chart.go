package main

import (
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/export"
	"github.com/sells-group/peaking-cli/internal/peaking"
	"github.com/sells-group/peaking-cli/internal/store"
)

var (
	chartInput string
	chartOut   string
)

var chartCmd = &cobra.Command{
	Use:   "chart <city>",
	Short: "Render the dashboard series of one city as a bar chart",
	Long:  "Evaluates the tracker in memory against the current registry and draws the selected series of a city, with its peak year highlighted. Nothing is written to the registry or the run log.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("input") {
			cfg.Input.Path = chartInput
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		if cfg.Input.Path == "" {
			return eris.New("tracker path is required (--input or PEAKING_INPUT_PATH)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, err := store.LookupPeaked(ctx, st)
		if err != nil {
			return eris.Wrap(err, "chart: read registry")
		}
		rows, err := trackerReader(cfg.Input.Path)(ctx, cfg.Input.Path, cfg.Input.TrackerOptions())
		if err != nil {
			return eris.Wrap(err, "chart: read tracker")
		}
		res, err := peaking.Run(rows, reg, cfg.Peaking.Options(clockwork.NewRealClock()))
		if err != nil {
			return eris.Wrap(err, "chart")
		}

		city := resolveCity(res.Table.Cities(), args[0])
		out := chartOut
		if out == "" {
			out = filepath.Join(cfg.Output.Dir, "charts", chartFileName(city))
		}
		if err := export.RenderChart(out, city, export.CitySeries(res.Dashboard, city)); err != nil {
			return err
		}
		zap.L().Info("chart written", zap.String("city", city), zap.String("path", out))
		return nil
	},
}

// resolveCity returns the table spelling of name, or name when no city
// matches.
func resolveCity(cities []string, name string) string {
	key := peaking.CityKey(name)
	for _, c := range cities {
		if peaking.CityKey(c) == key {
			return c
		}
	}
	return name
}

func chartFileName(city string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(city))
	return slug + ".png"
}

func init() {
	chartCmd.Flags().StringVar(&chartInput, "input", "", "path to the emissions tracker (default from config)")
	chartCmd.Flags().StringVar(&chartOut, "out", "", "image path; the extension picks the format (default <output.dir>/charts/<city>.png)")
	rootCmd.AddCommand(chartCmd)
}
