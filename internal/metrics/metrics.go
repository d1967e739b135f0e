// Package metrics holds the Prometheus collectors of the bot.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CopiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filestore_copies_total", Help: "Message copies attempted, by result"},
		[]string{"result"},
	)
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filestore_deliveries_total", Help: "Content deliveries, by kind"},
		[]string{"kind"},
	)
	GatePromptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filestore_gate_prompts_total", Help: "Subscription prompts shown, by stage"},
		[]string{"stage"},
	)
	ExpiryScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "filestore_expiry_scheduled_total", Help: "Messages scheduled for deletion"},
	)
	ExpiryDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filestore_expiry_deleted_total", Help: "Scheduled deletions performed, by result"},
		[]string{"result"},
	)
	ExpiryPending = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "filestore_expiry_pending", Help: "Messages waiting for deletion"},
	)
	RelayMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filestore_relay_messages_total", Help: "Relayed messages, by direction"},
		[]string{"direction"},
	)
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filestore_updates_total", Help: "Inbound updates handled, by type"},
		[]string{"type"},
	)
)

var registerOnce sync.Once

// MustRegister registers every collector with the default registry. Calling
// it more than once is a no-op.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CopiesTotal, DeliveriesTotal, GatePromptsTotal,
			ExpiryScheduled, ExpiryDeleted, ExpiryPending,
			RelayMessagesTotal, UpdatesTotal,
		)
	})
}
