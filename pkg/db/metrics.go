package db

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsCollector exposes pgxpool statistics. Values are read from the
// pool on every Collect so a textfile export at the end of a run shows the
// final state.
type PoolStatsCollector struct {
	pool *pgxpool.Pool

	totalConns      *prometheus.Desc
	idleConns       *prometheus.Desc
	acquiredConns   *prometheus.Desc
	maxConns        *prometheus.Desc
	acquireCount    *prometheus.Desc
	acquireDuration *prometheus.Desc
	emptyAcquires   *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for pool. The database label
// distinguishes pools when more than one is exported (e.g. "destination").
func NewPoolStatsCollector(pool *pgxpool.Pool, namespace, database string) *PoolStatsCollector {
	constLabels := prometheus.Labels{"database": database}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, constLabels)
	}

	return &PoolStatsCollector{
		pool:            pool,
		totalConns:      desc("total_conns", "Total number of connections currently open in the pool"),
		idleConns:       desc("idle_conns", "Number of idle connections in the pool"),
		acquiredConns:   desc("acquired_conns", "Number of connections currently acquired from the pool"),
		maxConns:        desc("max_conns", "Maximum number of connections allowed in the pool"),
		acquireCount:    desc("acquires_total", "Cumulative count of successful connection acquires"),
		acquireDuration: desc("acquire_duration_seconds_total", "Total time spent waiting to acquire connections"),
		emptyAcquires:   desc("empty_acquires_total", "Acquires that had to wait because the pool was empty"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.acquiredConns
	ch <- c.maxConns
	ch <- c.acquireCount
	ch <- c.acquireDuration
	ch <- c.emptyAcquires
}

// Collect implements prometheus.Collector. A nil pool yields no metrics.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}

	stats := c.pool.Stat()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.totalConns, float64(stats.TotalConns()))
	gauge(c.idleConns, float64(stats.IdleConns()))
	gauge(c.acquiredConns, float64(stats.AcquiredConns()))
	gauge(c.maxConns, float64(stats.MaxConns()))
	counter(c.acquireCount, float64(stats.AcquireCount()))
	counter(c.acquireDuration, stats.AcquireDuration().Seconds())
	counter(c.emptyAcquires, float64(stats.EmptyAcquireCount()))
}

// RegisterPoolStatsCollector registers a collector for pool with reg.
// Registering the same collector twice is not an error.
func RegisterPoolStatsCollector(reg prometheus.Registerer, pool *pgxpool.Pool, namespace, database string) (*PoolStatsCollector, error) {
	collector := NewPoolStatsCollector(pool, namespace, database)
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}
	return collector, nil
}
