package remotestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pendingWritesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "remotestore_pending_writes",
		Help: "the number of mutation batches accepted but not yet acknowledged",
	})
	listenTargetsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "remotestore_listen_targets",
		Help: "the number of active listen targets",
	})
	onlineStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remotestore_online_state_transitions_total",
		Help: "the number of times the online state changed, labeled by the new state",
	}, []string{"to"})
	existenceFilterMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remotestore_existence_filter_mismatches_total",
		Help: "the number of existence-filter mismatches detected",
	})
	writeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remotestore_write_errors_total",
		Help: "the number of write-stream errors handled, labeled by whether they were permanent",
	}, []string{"permanent"})
)
