package manager

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	installs       prometheus.Counter
	upgrades       prometheus.Counter
	deployFailures prometheus.Counter
	unresolved     prometheus.Counter
	queueDepth     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		installs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "addonsync_installs_total",
			Help: "Add-on installs completed successfully.",
		}),
		upgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "addonsync_upgrades_total",
			Help: "Add-on upgrades completed successfully.",
		}),
		deployFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "addonsync_deploy_failures_total",
			Help: "Deploy attempts that failed and will be retried.",
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "addonsync_unresolved_lookups_total",
			Help: "Catalog lookups for components the catalog does not offer.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "addonsync_queue_depth",
			Help: "Pending add-on installs.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.installs, m.upgrades, m.deployFailures, m.unresolved, m.queueDepth)
	}
	return m
}
