package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is a snapshot of connection pool counters
type PoolStats struct {
	Total    int32
	Acquired int32
	Idle     int32
	Max      int32
}

// PgxPoolStats adapts a pgx pool to the collector's snapshot function
func PgxPoolStats(pool *pgxpool.Pool) func() PoolStats {
	return func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Total:    s.TotalConns(),
			Acquired: s.AcquiredConns(),
			Idle:     s.IdleConns(),
			Max:      s.MaxConns(),
		}
	}
}

// PoolCollector reads pool stats at scrape time instead of polling
type PoolCollector struct {
	stats    func() PoolStats
	total    *prometheus.Desc
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	max      *prometheus.Desc
}

func NewPoolCollector(stats func() PoolStats) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db", name), help, nil, nil)
	}

	return &PoolCollector{
		stats:    stats,
		total:    desc("connections_open", "Number of open database connections"),
		acquired: desc("connections_in_use", "Number of database connections currently in use"),
		idle:     desc("connections_idle", "Number of idle database connections"),
		max:      desc("connections_max_open", "Maximum number of open database connections"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
}
