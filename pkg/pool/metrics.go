package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	acks       *prometheus.CounterVec
	connects   *prometheus.CounterVec
	received   prometheus.Counter
	duplicates prometheus.Counter
	streams    prometheus.Gauge
}

// newMetrics creates the pool's collectors, registering them only when reg
// is not nil.
func newMetrics(reg prometheus.Registerer) (m *metrics) {
	m = &metrics{
		acks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postr_pool_publish_acks_total",
				Help: "Per relay publish results",
			},
			[]string{"status"},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postr_pool_connect_attempts_total",
				Help: "Relay connection attempts",
			},
			[]string{"result"},
		),
		received: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postr_pool_query_events_total",
				Help: "Events received by queries and streams",
			},
		),
		duplicates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postr_pool_query_duplicates_total",
				Help: "Received events dropped as already seen",
			},
		),
		streams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postr_pool_open_streams",
				Help: "Live subscription streams",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.acks, m.connects, m.received, m.duplicates,
			m.streams)
	}
	return
}
