package export

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/db"
	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/peaking"
	"github.com/sells-group/peaking-cli/internal/store"
)

var (
	emissionsColumns = []string{
		"city", "year", "data_source", "rank", "status", "use_for_dashboard", "emissions", "peak_year", "run_id", "updated_at",
	}
	auditColumns = []string{
		"city", "year", "data_source", "rank", "status", "use_for_dashboard", "emissions", "peak_year", "run_id",
	}
)

// Publisher writes the dashboard and audit tables to Postgres.
type Publisher struct {
	Pool  db.Pool
	Clock clockwork.Clock
}

func (p Publisher) Name() string { return "publish" }

// Write upserts the dashboard rows keyed on (city, year) and replaces the
// audit table.
func (p Publisher) Write(ctx context.Context, run *model.Run, res *peaking.Result) ([]string, error) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now().UTC()

	n, err := db.BulkUpsert(ctx, p.Pool, db.UpsertConfig{
		Table:        store.EmissionsTable,
		Columns:      emissionsColumns,
		ConflictKeys: []string{"city", "year"},
	}, dashboardRows(res.Dashboard, run.ID, now))
	if err != nil {
		return nil, err
	}

	audited, err := db.ReplaceAll(ctx, p.Pool, store.AuditTable, auditColumns, auditRows(res.Audit, run.ID))
	if err != nil {
		return nil, err
	}

	zap.L().Info("export: published dashboard tables",
		zap.String("run_id", run.ID),
		zap.Int64("dashboard_rows", n),
		zap.Int64("audit_rows", audited),
	)
	return []string{store.EmissionsTable, store.AuditTable}, nil
}

func dashboardRows(rows []model.DashboardRow, runID string, now time.Time) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{
			r.City, r.Year, string(r.Source), r.Rank, string(r.Status), r.UseForDashboard, r.Emissions, r.PeakYear, runID, now,
		}
	}
	return out
}

func auditRows(rows []model.DashboardRow, runID string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{
			r.City, r.Year, string(r.Source), r.Rank, string(r.Status), r.UseForDashboard, r.Emissions, r.PeakYear, runID,
		}
	}
	return out
}
