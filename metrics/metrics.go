// Package metrics provides Prometheus metrics for the chat bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsReceived counts conversation snapshots delivered by the transport.
	SnapshotsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_snapshots_received_total",
			Help: "Total number of conversation snapshots received from the transport",
		},
	)

	// SnapshotsDropped counts snapshots that arrived for a closed subscription.
	SnapshotsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_snapshots_dropped_total",
			Help: "Total number of snapshots ignored because their subscription was closed",
		},
	)

	// Notifications counts notifications emitted, by kind.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notifications_total",
			Help: "Total number of notifications emitted",
		},
		[]string{"kind"},
	)

	// CredentialFetches counts credential fetches against the transport.
	CredentialFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_credential_fetches_total",
			Help: "Total number of chat credential fetches",
		},
	)

	// ActiveSubscriptions tracks the number of open transport subscriptions.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_subscriptions",
			Help: "Number of currently open transport subscriptions",
		},
	)

	// Unread is 1 when at least one conversation is unread.
	Unread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_has_unread",
			Help: "1 when at least one conversation has an unread message",
		},
	)

	// Conversations tracks the size of the last reconciled snapshot.
	Conversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_conversations",
			Help: "Number of conversations in the last reconciled snapshot",
		},
	)
)

// RecordSnapshot updates the snapshot metrics.
func RecordSnapshot(conversations int, hasUnread bool) {
	SnapshotsReceived.Inc()
	Conversations.Set(float64(conversations))
	if hasUnread {
		Unread.Set(1)
	} else {
		Unread.Set(0)
	}
}
