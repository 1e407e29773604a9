package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/export"
	"github.com/sells-group/peaking-cli/internal/fetcher"
	"github.com/sells-group/peaking-cli/internal/monitoring"
	"github.com/sells-group/peaking-cli/internal/observability"
	"github.com/sells-group/peaking-cli/internal/runner"
	"github.com/sells-group/peaking-cli/internal/store"
	"github.com/sells-group/peaking-cli/internal/tracker"
)

var (
	runInput   string
	runOutDir  string
	runDryRun  bool
	runCSV     bool
	runPublish bool
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the peaking analysis over the emissions tracker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		applyRunFlags(cmd)
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

		clock := clockwork.NewRealClock()
		sinks, err := buildSinks(st, clock)
		if err != nil {
			return err
		}

		r := runner.New(st, observability.NewMetrics(nil),
			runner.WithClock(clock),
			runner.WithReader(trackerReader(cfg.Input.Path)),
			runner.WithSinks(sinks...),
		)

		out, err := r.Execute(ctx, runner.Request{
			InputPath: cfg.Input.Path,
			Tracker:   cfg.Input.TrackerOptions(),
			Peaking:   cfg.Peaking.Options(clock),
			DryRun:    runDryRun,
		})
		if err != nil {
			return eris.Wrap(err, "run")
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out.Summary)
		}

		rep := out.Result.Report
		zap.L().Info("peaking analysis complete",
			zap.String("run_id", out.Run.ID),
			zap.Int("peaked", rep.PeakedCount),
			zap.Int("registry", rep.RegistryCount),
			zap.Strings("newly_peaked", rep.NewlyPeaked),
			zap.Int("registry_added", out.Added),
			zap.Strings("outputs", out.Summary.Outputs),
		)
		return nil
	},
}

// applyRunFlags overlays explicitly set flags on the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input.Path = runInput
	}
	if flags.Changed("out") {
		cfg.Output.Dir = runOutDir
	}
	if flags.Changed("csv") {
		cfg.Output.CSV = runCSV
	}
	if flags.Changed("publish") {
		cfg.Output.Publish = runPublish
	}
}

// trackerReader returns the reader for src. Remote trackers are downloaded
// into the output directory first.
func trackerReader(src string) runner.ReadFunc {
	if !fetcher.IsRemote(src) {
		return tracker.Read
	}
	f := fetcher.NewHTTPFetcher(fetcher.Options{Retry: cfg.Store.Retry.Resilience()})
	return f.TrackerReader(filepath.Join(cfg.Output.Dir, "input"))
}

// buildSinks returns the configured output sinks. Publishing needs the
// Postgres pool of the store.
func buildSinks(st store.Store, clock clockwork.Clock) ([]runner.Sink, error) {
	sinks := []runner.Sink{export.WorkbookSink{Dir: cfg.Output.Dir}}
	if cfg.Output.CSV {
		sinks = append(sinks, export.CSVSink{Dir: cfg.Output.Dir})
	}
	if cfg.Output.Publish {
		pg, ok := st.(*store.PostgresStore)
		if !ok {
			return nil, eris.New("publishing requires the postgres store driver")
		}
		sinks = append(sinks, export.Publisher{Pool: pg.Pool()})
	}
	if cfg.Monitoring.WebhookURL != "" {
		sinks = append(sinks, monitoring.NewAlerter(cfg.Monitoring, clock))
	}
	return sinks, nil
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "path to the emissions tracker (.xlsx or .csv)")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "output directory (default from config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "write outputs but leave the registry untouched")
	runCmd.Flags().BoolVar(&runCSV, "csv", false, "also write the dashboard tables as CSV")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "publish the dashboard tables to Postgres")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(runCmd)
}
