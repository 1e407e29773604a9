package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/store"
)

// RunSnapshot holds a point-in-time view of the run log.
type RunSnapshot struct {
	Total       int        `json:"total"`
	Complete    int        `json:"complete"`
	Failed      int        `json:"failed"`
	Running     int        `json:"running"`
	FailRate    float64    `json:"fail_rate"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// collectLimit caps the runs read per snapshot.
const collectLimit = 1000

// Collector gathers run statistics from the store.
type Collector struct {
	store store.Store
	clock clockwork.Clock
}

// NewCollector creates a new run collector.
func NewCollector(st store.Store, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{store: st, clock: clock}
}

// Collect summarizes the runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*RunSnapshot, error) {
	now := c.clock.Now().UTC()
	snap := &RunSnapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, model.RunFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	// Runs are newest first.
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			break
		}
		snap.Total++
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
			if snap.LastSuccess == nil && r.CompletedAt != nil {
				at := *r.CompletedAt
				snap.LastSuccess = &at
			}
		case model.RunStatusFailed:
			snap.Failed++
			if snap.LastError == "" {
				snap.LastError = r.Error
			}
		default:
			snap.Running++
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
