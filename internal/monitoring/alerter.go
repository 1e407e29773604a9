// Package monitoring raises webhook alerts about peaking results and run
// health.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/config"
	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/peaking"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertNewlyPeaked     AlertType = "newly_peaked"
	AlertPeakReversed    AlertType = "peak_reversed"
	AlertRegistryMissing AlertType = "registry_missing"
	AlertRunFailureRate  AlertType = "run_failure_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates results and run snapshots and sends alerts via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	clock  clockwork.Clock
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig, clock clockwork.Clock) *Alerter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		clock:  clock,
	}
}

// EvaluateResult returns alerts for newly peaked cities, reversed peaks and
// registry entries the current data could not match.
func (a *Alerter) EvaluateResult(run *model.Run, res *peaking.Result) []Alert {
	var alerts []Alert
	now := a.clock.Now().UTC()
	rep := res.Report

	if len(rep.NewlyPeaked) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNewlyPeaked,
			Severity: "info",
			Message: fmt.Sprintf("%d new cit%s peaked: %s",
				len(rep.NewlyPeaked), plural(len(rep.NewlyPeaked)), strings.Join(rep.NewlyPeaked, ", ")),
			Details: map[string]any{
				"cities":         rep.NewlyPeaked,
				"peaked_count":   rep.PeakedCount,
				"registry_count": rep.RegistryCount,
				"run_id":         run.ID,
				"dry_run":        run.DryRun,
			},
			Timestamp: now,
		})
	}

	var reversed, missing []string
	for _, o := range res.Overrides {
		switch o.Action {
		case peaking.OverrideReversed:
			reversed = append(reversed, o.City)
		case peaking.OverrideMissingCity, peaking.OverrideMissingSource:
			missing = append(missing, o.City)
		}
	}

	if len(reversed) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertPeakReversed,
			Severity: "high",
			Message: fmt.Sprintf("peak reversed for %d registered cit%s: %s",
				len(reversed), plural(len(reversed)), strings.Join(reversed, ", ")),
			Details: map[string]any{
				"cities": reversed,
				"run_id": run.ID,
			},
			Timestamp: now,
		})
	}

	if len(missing) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRegistryMissing,
			Severity: "medium",
			Message: fmt.Sprintf("%d registered cit%s not found in the tracker with their registry source: %s",
				len(missing), plural(len(missing)), strings.Join(missing, ", ")),
			Details: map[string]any{
				"cities": missing,
				"run_id": run.ID,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// EvaluateRuns checks the run-log snapshot against the failure threshold.
func (a *Alerter) EvaluateRuns(snap *RunSnapshot) []Alert {
	finished := snap.Complete + snap.Failed
	if finished < 3 || snap.FailRate <= a.cfg.FailureRateThreshold {
		return nil
	}
	return []Alert{{
		Type:     AlertRunFailureRate,
		Severity: "high",
		Message: fmt.Sprintf(
			"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
			snap.FailRate*100, a.cfg.FailureRateThreshold*100,
			snap.Failed, finished, snap.LookbackHours,
		),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       snap.Failed,
			"finished":     finished,
			"last_error":   snap.LastError,
		},
		Timestamp: a.clock.Now().UTC(),
	}}
}

// Name implements the run output sink.
func (a *Alerter) Name() string { return "alerts" }

// Write sends the result alerts of a finished run. Delivery failures are
// logged, never returned, so alerts cannot block the registry update.
func (a *Alerter) Write(ctx context.Context, run *model.Run, res *peaking.Result) ([]string, error) {
	alerts := a.EvaluateResult(run, res)
	for _, al := range alerts {
		zap.L().Info("monitoring: alert raised",
			zap.String("type", string(al.Type)),
			zap.String("message", al.Message),
		)
	}
	if a.SendAlerts(ctx, alerts) == 0 {
		return nil, nil
	}
	return []string{"webhook"}, nil
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
