package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion path.
	MessagesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_messages_submitted_total",
		Help: "Messages accepted and durably persisted.",
	})
	MessagePersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_message_persist_failures_total",
		Help: "Messages that consumed a sequence number but failed the durable write (known gap).",
	})
	BroadcastPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_broadcast_publish_failures_total",
		Help: "Best-effort bus publishes that failed (delivery delayed, record unaffected).",
	})

	// Read-state queue + persister.
	ReadEventsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_read_events_queued_total",
		Help: "Read-receipt events accepted onto the durable queue.",
	})
	PersistBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatpipe_readstate_persist_batches_total",
		Help: "Batch persister outcomes.",
	}, []string{"result"})
	PersistEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_readstate_persist_events_total",
		Help: "Read-receipt events applied after in-batch dedup.",
	})

	// Producer fallback buffer.
	FallbackBuffered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatpipe_readstate_fallback_buffered",
		Help: "Read-receipt events currently parked in the in-process fallback buffer.",
	})
	FallbackDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_readstate_fallback_dropped_total",
		Help: "Events dropped from the fallback buffer on overflow (repaired later by the sweep).",
	})

	// Dead-letter reconciler.
	ReconcileSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_readstate_reconcile_success_total",
		Help: "Dead-lettered events reconciled into the durable store.",
	})
	ReconcileFailure = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_readstate_reconcile_failure_total",
		Help: "Dead-letter reconciliations that failed and were re-raised.",
	})

	// Background sweep.
	SweepExamined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_readstate_sweep_examined_total",
		Help: "Stale durable rows examined by the reconciliation sweep.",
	})
	SweepFixed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_readstate_sweep_fixed_total",
		Help: "Durable rows repaired from the fast-path marker.",
	})
	SweepMaxDivergence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatpipe_readstate_sweep_max_divergence_seconds",
		Help: "Largest marker/durable divergence age observed in the last sweep.",
	})
)
