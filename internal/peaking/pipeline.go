package peaking

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/model"
)

// Result holds every table a run produces.
type Result struct {
	Options      Options              `json:"-"`
	Observations []model.Observation  `json:"-"`
	Load         LoadStats            `json:"load"`
	Table        *model.Table         `json:"-"`
	Composites   int                  `json:"composites"`
	Overrides    []Override           `json:"overrides"`
	Report       Report               `json:"report"`
	Dashboard    []model.DashboardRow `json:"-"`
	Audit        []model.DashboardRow `json:"-"`
	Peaks        []model.PeakYearRow  `json:"-"`
}

// NewEntries returns the registry entries this run would append.
func (r *Result) NewEntries() []model.RegistryEntry {
	return NewEntries(r.Table, r.Report)
}

// Summary condenses the result for the run log.
func (r *Result) Summary() *model.RunSummary {
	s := &model.RunSummary{
		RowsRead:      r.Load.Read,
		RowsKept:      r.Load.Kept,
		RowsDropped:   make(map[string]int, len(r.Load.Dropped)),
		Records:       len(r.Table.Records),
		Cities:        len(r.Table.Cities()),
		Composites:    r.Composites,
		StatusCounts:  make(map[string]int, len(r.Report.StatusCounts)),
		PeakedCount:   r.Report.PeakedCount,
		RegistryCount: r.Report.RegistryCount,
		NewlyPeaked:   r.Report.NewlyPeaked,
	}
	for reason, n := range r.Load.Dropped {
		s.RowsDropped[string(reason)] = n
	}
	for status, n := range r.Report.StatusCounts {
		s.StatusCounts[string(status)] = n
	}
	for _, o := range r.Overrides {
		switch o.Action {
		case OverrideForced:
			s.Overrides++
		case OverrideReversed:
			s.Reversed++
		}
	}
	return s
}

// Run executes load, combine, evaluate, select, registry override and melt
// over one snapshot of tracker rows. The registry is only read.
func Run(rows []model.RawRow, reg model.Registry, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.Int("base_year", opts.Years.Base), zap.Int("current_year", opts.Years.Current))

	obs, stats := Load(rows, opts)
	log.Info("tracker rows loaded",
		zap.Int("read", stats.Read),
		zap.Int("kept", stats.Kept),
		zap.Int("dropped", stats.DroppedTotal()),
	)
	for reason, n := range stats.Dropped {
		log.Info("rows dropped", zap.String("reason", string(reason)), zap.Int("count", n))
	}
	if stats.Read > 0 && stats.Kept == 0 {
		log.Warn("no tracker rows survived filtering")
	}

	table := Combine(obs, opts.Years)
	Evaluate(table)
	Select(table)
	overrides := ApplyRegistry(table, reg)
	report := Summarize(table, reg)

	counts := []zap.Field{
		zap.Int("peaked", report.PeakedCount),
		zap.Int("registry", report.RegistryCount),
		zap.Bool("exceeds_registry", report.Exceeds),
	}
	if len(report.NewlyPeaked) == 0 {
		log.Info("no new cities have peaked", counts...)
	} else {
		log.Info("new cities have peaked", append(counts, zap.Int("new", len(report.NewlyPeaked)))...)
		for _, city := range report.NewlyPeaked {
			log.Info("newly peaked city", zap.String("city", city))
		}
	}

	dashboard, audit := Melt(table)
	if err := checkSelection(table); err != nil {
		return nil, err
	}

	return &Result{
		Options:      opts,
		Observations: obs,
		Load:         stats,
		Table:        table,
		Composites:   CompositeCount(table),
		Overrides:    overrides,
		Report:       report,
		Dashboard:    dashboard,
		Audit:        audit,
		Peaks:        PeakTable(dashboard),
	}, nil
}

// checkSelection verifies each city has exactly one dashboard record.
func checkSelection(t *model.Table) error {
	selected := make(map[string]int)
	for _, r := range t.Records {
		if r.UseForDashboard {
			selected[r.City]++
		}
	}
	for _, city := range t.Cities() {
		if selected[city] != 1 {
			return eris.Errorf("peaking: city %q has %d dashboard records", city, selected[city])
		}
	}
	return nil
}
