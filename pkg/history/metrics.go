package history

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "transcriber"

// PoolStatsCollector exposes the PostgreSQL history pool as Prometheus gauges.
// Stats are read from the pool on each scrape.
type PoolStatsCollector struct {
	pool *pgxpool.Pool

	totalConns    *prometheus.Desc
	idleConns     *prometheus.Desc
	acquiredConns *prometheus.Desc
	maxConns      *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for pool.
func NewPoolStatsCollector(pool *pgxpool.Pool) *PoolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "history_pool", name), help, nil, nil)
	}
	return &PoolStatsCollector{
		pool:          pool,
		totalConns:    desc("total_conns", "Connections currently open in the history pool"),
		idleConns:     desc("idle_conns", "Idle connections in the history pool"),
		acquiredConns: desc("acquired_conns", "Connections currently acquired from the history pool"),
		maxConns:      desc("max_conns", "Maximum connections allowed in the history pool"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.acquiredConns
	ch <- c.maxConns
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stats.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stats.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(stats.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(stats.MaxConns()))
}

// Collector returns a pool stats collector for the store.
func (s *PostgresStore) Collector() prometheus.Collector {
	return NewPoolStatsCollector(s.pool)
}

// RegisterMetrics registers pool metrics for stores that have a connection
// pool. Other stores are a no-op. A collector that is already registered is
// not an error.
func RegisterMetrics(store Store, reg prometheus.Registerer) error {
	pooled, ok := store.(interface{ Collector() prometheus.Collector })
	if !ok || reg == nil {
		return nil
	}
	if err := reg.Register(pooled.Collector()); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
	}
	return nil
}
