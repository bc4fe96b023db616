package prommetrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vortex-fintech/pgexec/data/postgres"
)

// PromMetrics implements postgres.Metrics using Prometheus.
type PromMetrics struct {
	executions     *prometheus.HistogramVec
	acquire        prometheus.Histogram
	rollbackFailed prometheus.Counter
}

var _ postgres.Metrics = (*PromMetrics)(nil)

// StatsSource is satisfied by *postgres.Pool.
type StatsSource interface {
	Stats() postgres.Stats
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

// New creates a PromMetrics instance and registers it with reg.
//
// Metrics registered:
//   - {namespace}_{subsystem}_execution_duration_seconds{op, outcome}
//   - {namespace}_{subsystem}_acquire_duration_seconds
//   - {namespace}_{subsystem}_rollback_failures_total
//
// When pool is not nil the connection gauges
// {namespace}_{subsystem}_connections{state} and
// {namespace}_{subsystem}_max_connections are registered as well.
func New(reg prometheus.Registerer, namespace, subsystem string, pool StatsSource) (*PromMetrics, error) {
	if reg == nil {
		return nil, errors.New("prometheus registerer is nil")
	}

	pm := &PromMetrics{
		executions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "execution_duration_seconds",
			Help:    "Duration of executions by operation and outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "outcome"}),

		acquire: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "acquire_duration_seconds",
			Help:    "Time spent waiting for a pooled connection",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		rollbackFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "rollback_failures_total", Help: "Rollbacks that returned an error",
		}),
	}

	cs := []prometheus.Collector{pm.executions, pm.acquire, pm.rollbackFailed}
	if pool != nil {
		cs = append(cs, newPoolCollector(pool, namespace, subsystem))
	}
	for _, c := range cs {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}

	return pm, nil
}

func (p *PromMetrics) ObserveExecution(op, outcome string, d time.Duration) {
	p.executions.WithLabelValues(op, outcome).Observe(d.Seconds())
}

func (p *PromMetrics) ObserveAcquire(d time.Duration) {
	p.acquire.Observe(d.Seconds())
}

func (p *PromMetrics) RollbackFailed() {
	p.rollbackFailed.Inc()
}

type poolCollector struct {
	src   StatsSource
	conns *prometheus.Desc
	max   *prometheus.Desc
}

func newPoolCollector(src StatsSource, namespace, subsystem string) *poolCollector {
	return &poolCollector{
		src: src,
		conns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections"),
			"Pooled connections by state", []string{"state"}, nil),
		max: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "max_connections"),
			"Configured pool capacity", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.max
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.InUse), "in_use")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Total), "total")
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
}
