// Package runner executes one peaking run end to end: read the tracker and the
// registry, evaluate, write outputs, append newly peaked cities and record
// the run.
package runner

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/observability"
	"github.com/sells-group/peaking-cli/internal/peaking"
	"github.com/sells-group/peaking-cli/internal/store"
	"github.com/sells-group/peaking-cli/internal/tracker"
)

// Request describes one run.
type Request struct {
	InputPath string
	Tracker   tracker.Options
	Peaking   peaking.Options
	DryRun    bool // evaluate and write outputs but leave the registry untouched
}

// Sink persists a finished result and returns the locations it wrote.
type Sink interface {
	Name() string
	Write(ctx context.Context, run *model.Run, res *peaking.Result) ([]string, error)
}

// ReadFunc loads tracker rows. tracker.Read is used unless overridden.
type ReadFunc func(ctx context.Context, path string, opts tracker.Options) ([]model.RawRow, error)

// Outcome is what a successful run produced.
type Outcome struct {
	Run     *model.Run
	Result  *peaking.Result
	Summary *model.RunSummary
	Added   int
}

// Runner orchestrates runs against a store.
type Runner struct {
	store   store.Store
	metrics *observability.Metrics
	clock   clockwork.Clock
	read    ReadFunc
	sinks   []Sink
}

// Option customises a Runner.
type Option func(*Runner)

// WithClock sets the clock used for timing runs.
func WithClock(c clockwork.Clock) Option { return func(r *Runner) { r.clock = c } }

// WithReader replaces the tracker reader.
func WithReader(fn ReadFunc) Option { return func(r *Runner) { r.read = fn } }

// WithSinks adds output sinks, written in order.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// New creates a Runner. metrics may be nil.
func New(st store.Store, metrics *observability.Metrics, opts ...Option) *Runner {
	r := &Runner{
		store:   st,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		read:    tracker.Read,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Execute runs the pipeline once. A failed run is recorded in the run log
// before the error is returned. The registry is only written after every
// sink succeeded.
func (r *Runner) Execute(ctx context.Context, req Request) (*Outcome, error) {
	start := r.clock.Now()
	log := zap.L().With(zap.String("input", req.InputPath), zap.Bool("dry_run", req.DryRun))

	run, err := r.store.CreateRun(ctx, req.InputPath, req.DryRun)
	if err != nil {
		return nil, eris.Wrap(err, "runner: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("runner: starting run")

	out, err := r.execute(ctx, log, run, req)
	elapsed := r.clock.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveRun(err, elapsed, r.clock.Now())
	}
	if err != nil {
		log.Error("runner: run failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		if failErr := r.store.FailRun(context.WithoutCancel(ctx), run.ID, err); failErr != nil {
			log.Warn("runner: failed to record run failure", zap.Error(failErr))
		}
		return nil, err
	}

	log.Info("runner: run complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("cities", out.Summary.Cities),
		zap.Int("peaked", out.Summary.PeakedCount),
		zap.Int("registry_added", out.Added),
	)
	return out, nil
}

func (r *Runner) execute(ctx context.Context, log *zap.Logger, run *model.Run, req Request) (*Outcome, error) {
	// Phase 1: read the tracker and the registry in parallel.
	var (
		rows []model.RawRow
		reg  model.Registry
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = r.read(gCtx, req.InputPath, req.Tracker)
		return eris.Wrap(err, "runner: read tracker")
	})
	g.Go(func() error {
		var err error
		reg, err = store.LookupPeaked(gCtx, r.store)
		return eris.Wrap(err, "runner: read registry")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("runner: inputs read", zap.Int("rows", len(rows)), zap.Int("registry", len(reg)))

	// Phase 2: evaluate.
	res, err := peaking.Run(rows, reg, req.Peaking)
	if err != nil {
		return nil, eris.Wrap(err, "runner: evaluate")
	}
	if r.metrics != nil {
		r.metrics.ObserveResult(res)
	}
	summary := res.Summary()

	// Phase 3: outputs.
	for _, sink := range r.sinks {
		paths, err := sink.Write(ctx, run, res)
		if err != nil {
			return nil, eris.Wrapf(err, "runner: write %s", sink.Name())
		}
		log.Info("runner: output written", zap.String("sink", sink.Name()), zap.Strings("paths", paths))
		summary.Outputs = append(summary.Outputs, paths...)
	}

	// Phase 4: registry write-back.
	added := 0
	if entries := res.NewEntries(); len(entries) > 0 && !req.DryRun {
		for i := range entries {
			entries[i].AddedBy = run.ID
		}
		added, err = r.store.AppendPeaked(ctx, entries)
		if err != nil {
			return nil, eris.Wrap(err, "runner: append registry")
		}
	} else if len(entries) > 0 {
		log.Info("runner: dry run, registry left unchanged", zap.Int("newly_peaked", len(entries)))
	}

	if err := r.store.CompleteRun(ctx, run.ID, summary); err != nil {
		return nil, eris.Wrap(err, "runner: complete run")
	}
	now := r.clock.Now().UTC()
	run.Status = model.RunStatusComplete
	run.Summary = summary
	run.CompletedAt = &now

	return &Outcome{Run: run, Result: res, Summary: summary, Added: added}, nil
}
