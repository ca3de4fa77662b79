// Package gwprom exports [gwatchdog.Metrics] events as Prometheus collectors.
package gwprom

import (
	"errors"
	"fmt"

	"github.com/gordian-engine/gwdt/gwatchdog"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace is used when [Options.Namespace] is empty.
const DefaultNamespace = "gwdt"

// Options controls collector configuration.
type Options struct {
	Namespace string

	// Buckets for the report interval histogram, in ticks.
	// Defaults to powers of two from 1 to 4096.
	IntervalBuckets []float64
}

// Metrics adapts [gwatchdog.Metrics] to Prometheus collectors.
type Metrics struct {
	kicksTotal          prom.Counter
	reportsTotal        *prom.CounterVec
	reportIntervalTicks *prom.HistogramVec
	deadlinesMissed     *prom.CounterVec
	valid               prom.Gauge
}

var _ gwatchdog.Metrics = (*Metrics)(nil)

// New creates and registers the supervisor collectors with reg.
// If equivalent collectors are already registered,
// the existing collectors are shared.
func New(reg prom.Registerer, opts Options) (*Metrics, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.IntervalBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(1, 2, 13)
	}

	kicks := prom.NewCounter(prom.CounterOpts{
		Namespace: ns,
		Name:      "kicks_total",
		Help:      "Total number of hardware watchdog kicks.",
	})
	reports := prom.NewCounterVec(prom.CounterOpts{
		Namespace: ns,
		Name:      "task_reports_total",
		Help:      "Total number of task liveness reports.",
	}, []string{"task"})
	intervals := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: ns,
		Name:      "task_report_interval_ticks",
		Help:      "Ticks between consecutive reports of a task.",
		Buckets:   buckets,
	}, []string{"task"})
	missed := prom.NewCounterVec(prom.CounterOpts{
		Namespace: ns,
		Name:      "task_deadlines_missed_total",
		Help:      "Total number of missed task deadlines that stopped watchdog kicks.",
	}, []string{"task"})
	valid := prom.NewGauge(prom.GaugeOpts{
		Namespace: ns,
		Name:      "valid",
		Help:      "1 while every enabled task is reporting on time, otherwise 0.",
	})

	var err error
	if kicks, err = registerCollector(reg, kicks); err != nil {
		return nil, err
	}
	if reports, err = registerCollector(reg, reports); err != nil {
		return nil, err
	}
	if intervals, err = registerCollector(reg, intervals); err != nil {
		return nil, err
	}
	if missed, err = registerCollector(reg, missed); err != nil {
		return nil, err
	}
	if valid, err = registerCollector(reg, valid); err != nil {
		return nil, err
	}

	return &Metrics{
		kicksTotal:          kicks,
		reportsTotal:        reports,
		reportIntervalTicks: intervals,
		deadlinesMissed:     missed,
		valid:               valid,
	}, nil
}

func (m *Metrics) Kicked() {
	m.kicksTotal.Inc()
}

func (m *Metrics) Reported(task string, interval uint32) {
	task = normalizeLabel(task)
	m.reportsTotal.WithLabelValues(task).Inc()
	m.reportIntervalTicks.WithLabelValues(task).Observe(float64(interval))
}

func (m *Metrics) DeadlineMissed(task string, _ uint32) {
	m.deadlinesMissed.WithLabelValues(normalizeLabel(task)).Inc()
}

func (m *Metrics) ValidityChanged(valid bool) {
	if valid {
		m.valid.Set(1)
	} else {
		m.valid.Set(0)
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var are prom.AlreadyRegisteredError
	if errors.As(err, &are) {
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
