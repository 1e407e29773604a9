package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/api"
	"github.com/sells-group/peaking-cli/internal/monitoring"
	"github.com/sells-group/peaking-cli/internal/observability"
	"github.com/sells-group/peaking-cli/internal/runner"
)

var (
	servePort    int
	serveInput   string
	serveRefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard tables over HTTP",
	Long:  "Runs the analysis in dry-run mode and serves the dashboard tables of the latest result. The registry is never modified by the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("input") {
			cfg.Input.Path = serveInput
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
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
		r := runner.New(st, observability.NewMetrics(nil),
			runner.WithClock(clock),
			runner.WithReader(trackerReader(cfg.Input.Path)),
		)
		snap := runner.NewSnapshot(r, runner.Request{
			InputPath: cfg.Input.Path,
			Tracker:   cfg.Input.TrackerOptions(),
			Peaking:   cfg.Peaking.Options(clock),
			DryRun:    true,
		})

		// A failed first run leaves the API answering 503 until a refresh
		// succeeds.
		if _, err := snap.Refresh(ctx); err != nil {
			zap.L().Error("initial run failed", zap.Error(err))
		}
		if serveRefresh > 0 {
			go refreshLoop(ctx, clock, snap, serveRefresh)
		}
		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, clock),
				monitoring.NewAlerter(cfg.Monitoring, clock),
				cfg.Monitoring, clock,
			)
			go checker.Run(ctx)
		}

		handler := api.NewRouter(api.NewHandler(snap), api.RouterConfig{
			CORSOrigins: cfg.Server.CORSOrigins,
			RateLimit:   cfg.Server.RateLimit,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("input", cfg.Input.Path))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// refreshLoop re-runs the analysis every interval until ctx is done.
func refreshLoop(ctx context.Context, clock clockwork.Clock, snap *runner.Snapshot, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := snap.Refresh(ctx); err != nil {
				zap.L().Warn("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveInput, "input", "", "path to the emissions tracker (default from config)")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh-every", 0, "re-run the analysis on this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
