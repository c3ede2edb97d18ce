// Package metrics holds the Prometheus counters for event and payload
// lifecycles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Event stages.
const (
	StageLogged     = "logged"
	StageLocal      = "local"
	StageSent       = "sent"
	StageSucceeded  = "succeeded"
	StageRetried    = "retried"
	StageFailed     = "failed"
	StageStoreError = "store_error"
)

// Payload stages.
const (
	StageScheduled = "scheduled"
	StageDelivered = "delivered"
	StageExpired   = "expired"
	StageInvalid   = "invalid"
	StageDiscarded = "discarded"
)

// Flush results.
const (
	FlushSent          = "sent"
	FlushEmpty         = "empty"
	FlushNoTransmitter = "no_transmitter"
	FlushNotReady      = "not_ready"
	FlushError         = "error"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_total",
			Help: "Event lifecycle counter by stage",
		},
		[]string{"stage"}, // logged|local|sent|succeeded|retried|failed|store_error
	)

	PayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_payloads_total",
			Help: "Data payload lifecycle counter by stage",
		},
		[]string{"stage"}, // scheduled|delivered|expired|invalid|discarded
	)

	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_flushes_total",
			Help: "Flush attempts by result",
		},
		[]string{"result"},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_batch_size",
			Help:    "Number of events per transmitted batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		PayloadsTotal,
		FlushesTotal,
		BatchSize,
	)
}

// Event increments the event counter for stage.
func Event(stage string) {
	EventsTotal.WithLabelValues(stage).Inc()
}

// Payloads adds n to the payload counter for stage.
func Payloads(stage string, n int) {
	if n <= 0 {
		return
	}
	PayloadsTotal.WithLabelValues(stage).Add(float64(n))
}

// Flush increments the flush counter for result.
func Flush(result string) {
	FlushesTotal.WithLabelValues(result).Inc()
}
