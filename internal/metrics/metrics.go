// Package metrics records allocation run instrumentation.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/tender/internal/domain"
)

// Recorder receives run measurements
type Recorder interface {
	ObserveRun(run RunMetrics)
}

// RunMetrics is what one completed run reports
type RunMetrics struct {
	Strategy       domain.Strategy
	Duration       time.Duration
	Groups         int
	OverflowGroups int
	Units          int
	Diagnostics    map[domain.DiagnosticKind]int
}

// Nop discards every measurement
type Nop struct{}

// ObserveRun does nothing
func (Nop) ObserveRun(RunMetrics) {}

var _ Recorder = Nop{}

// Prometheus implements Recorder backed by Prometheus collectors.
// Collectors register lazily on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	groups         prometheus.Counter
	overflowGroups prometheus.Counter
	diagnostics    *prometheus.CounterVec
	units          prometheus.Counter
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a collector. reg defaults to prometheus.DefaultRegisterer,
// namespace to "tender".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "tender"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "runs_total",
			Help:      "Total allocation runs by strategy.",
		}, []string{"strategy"})

		p.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of allocation runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12), // 1ms .. ~60s
		})

		p.groups = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "groups_allocated_total",
			Help:      "Total groups allocated across runs.",
		})

		p.overflowGroups = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "overflow_groups_total",
			Help:      "Total groups where every candidate hit its cap and the top rank absorbed the rest.",
		})

		p.diagnostics = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "diagnostics_total",
			Help:      "Total diagnostics raised by kind.",
		}, []string{"kind"})

		p.units = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "units_allocated_total",
			Help:      "Total units placed with a handler.",
		})

		p.reg.MustRegister(p.runs)
		p.reg.MustRegister(p.runDuration)
		p.reg.MustRegister(p.groups)
		p.reg.MustRegister(p.overflowGroups)
		p.reg.MustRegister(p.diagnostics)
		p.reg.MustRegister(p.units)
	})
}

// ObserveRun records one run
func (p *Prometheus) ObserveRun(run RunMetrics) {
	p.ensureRegistered()

	strategy := string(run.Strategy)
	if strategy == "" {
		strategy = string(domain.StrategyCascading)
	}
	p.runs.WithLabelValues(strategy).Inc()
	p.runDuration.Observe(run.Duration.Seconds())
	p.groups.Add(float64(run.Groups))
	p.overflowGroups.Add(float64(run.OverflowGroups))
	p.units.Add(float64(run.Units))
	for kind, n := range run.Diagnostics {
		p.diagnostics.WithLabelValues(string(kind)).Add(float64(n))
	}
}
