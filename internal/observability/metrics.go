// Package observability exposes Prometheus metrics for peaking runs.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/peaking"
)

const namespace = "peaking"

// Metrics holds the Prometheus counters, histograms, and gauges for peaking runs.
type Metrics struct {
	Runs        *prometheus.CounterVec // labels: outcome={complete,failed}
	RunDuration prometheus.Histogram
	LastRun     prometheus.Gauge

	RowsRead    prometheus.Counter
	RowsDropped *prometheus.CounterVec // labels: reason

	Records      prometheus.Gauge
	Composites   prometheus.Gauge
	CityStatus   *prometheus.GaugeVec // labels: status
	PeakedCities prometheus.Gauge

	NewlyPeaked prometheus.Counter
	Overrides   *prometheus.CounterVec // labels: action
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Peaking runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete read-evaluate-write cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_rows_read_total",
			Help:      "Tracker rows read before filtering.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_rows_dropped_total",
			Help:      "Tracker rows dropped by the loader, by reason.",
		}, []string{"reason"}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "City and source records in the last run, composites included.",
		}),
		Composites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "composite_records",
			Help:      "Composite records built in the last run.",
		}),
		CityStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cities",
			Help:      "Cities by selected peaking status in the last run.",
		}, []string{"status"}),
		PeakedCities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peaked_cities",
			Help:      "Cities whose dashboard record is Peaked.",
		}),
		NewlyPeaked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "newly_peaked_total",
			Help:      "Cities found peaked that were not yet in the registry.",
		}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_overrides_total",
			Help:      "Registry re-checks by action.",
		}, []string{"action"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.RunDuration,
		m.LastRun,
		m.RowsRead,
		m.RowsDropped,
		m.Records,
		m.Composites,
		m.CityStatus,
		m.PeakedCities,
		m.NewlyPeaked,
		m.Overrides,
	}
}

// NewMetrics creates and registers all run metrics with reg. A nil reg means
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

// ObserveResult records the counts of a finished pipeline run.
func (m *Metrics) ObserveResult(res *peaking.Result) {
	m.RowsRead.Add(float64(res.Load.Read))
	for reason, n := range res.Load.Dropped {
		m.RowsDropped.WithLabelValues(string(reason)).Add(float64(n))
	}
	if res.Table != nil {
		m.Records.Set(float64(len(res.Table.Records)))
	}
	m.Composites.Set(float64(res.Composites))
	for _, status := range model.AllStatuses {
		m.CityStatus.WithLabelValues(string(status)).Set(float64(res.Report.StatusCounts[status]))
	}
	m.PeakedCities.Set(float64(res.Report.PeakedCount))
	m.NewlyPeaked.Add(float64(len(res.Report.NewlyPeaked)))
	for _, o := range res.Overrides {
		m.Overrides.WithLabelValues(string(o.Action)).Inc()
	}
}

// ObserveRun records a run's outcome and duration.
func (m *Metrics) ObserveRun(err error, elapsed time.Duration, finished time.Time) {
	outcome := string(model.RunStatusComplete)
	if err != nil {
		outcome = string(model.RunStatusFailed)
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.LastRun.Set(float64(finished.Unix()))
	}
}
