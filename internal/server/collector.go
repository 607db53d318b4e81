package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	invdb "github.com/yggai/ygggo_invdb"
)

// managerCollector exports the manager counters and, when a pool exists, the
// database/sql stats of the current generation. The pool is looked up at each
// scrape because a reconnect replaces the *sql.DB.
type managerCollector struct {
	m        *invdb.Manager
	acquired *prometheus.Desc
	released *prometheus.Desc
	opened   *prometheus.Desc
	recreate *prometheus.Desc
	state    *prometheus.Desc
	gen      *prometheus.Desc
}

func newManagerCollector(m *invdb.Manager) *managerCollector {
	pool := prometheus.Labels{"pool": m.Config().PoolName}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("ygggo_invdb_manager_"+name, help, nil, pool)
	}
	return &managerCollector{
		m:        m,
		acquired: desc("connections_acquired", "Connections borrowed across all pool generations."),
		released: desc("connections_released", "Connections returned across all pool generations."),
		opened:   desc("pools_opened", "Pools successfully created."),
		recreate: desc("pools_recreated", "Pools created to replace an earlier one."),
		state:    desc("state", "Pool state: 0 absent, 1 initializing, 2 ready."),
		gen:      desc("generation", "Current pool generation."),
	}
}

// Describe sends nothing: the DB stats series come and go with the pool, so
// the collector is registered unchecked.
func (c *managerCollector) Describe(chan<- *prometheus.Desc) {}

func (c *managerCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.m.Stats()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(st.Acquired))
	ch <- prometheus.MustNewConstMetric(c.released, prometheus.CounterValue, float64(st.Released))
	ch <- prometheus.MustNewConstMetric(c.opened, prometheus.CounterValue, float64(st.Opened))
	ch <- prometheus.MustNewConstMetric(c.recreate, prometheus.CounterValue, float64(st.Recreated))
	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(st.State))
	ch <- prometheus.MustNewConstMetric(c.gen, prometheus.GaugeValue, float64(st.Generation))

	if db := c.m.DB(); db != nil {
		collectors.NewDBStatsCollector(db, c.m.Config().PoolName).Collect(ch)
	}
}
