// Package metrics implements Prometheus metrics for the node and its
// peer connections, using the same promauto-registered vectors the
// teacher exposes for its capture pipeline (internal/metrics), renamed
// from packet/task/reporter dimensions to peer/application dimensions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSentTotal counts outbound messages per peer and command code.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diameter_messages_sent_total",
			Help: "Total number of Diameter messages sent",
		},
		[]string{"peer", "command"},
	)

	// MessagesReceivedTotal counts inbound messages per peer and command code.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diameter_messages_received_total",
			Help: "Total number of Diameter messages received",
		},
		[]string{"peer", "command"},
	)

	// RequestLatencySeconds measures round-trip latency of outbound requests.
	RequestLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diameter_request_latency_seconds",
			Help:    "Latency between an outbound request and its answer",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"peer", "command"},
	)

	// PendingRequests tracks the number of outstanding requests per peer.
	PendingRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diameter_pending_requests",
			Help: "Number of outbound requests awaiting an answer",
		},
		[]string{"peer"},
	)

	// PeerState tracks each peer connection's current state-machine node.
	PeerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diameter_peer_state",
			Help: "Current PeerConnection state (1=active for the labeled state, 0 otherwise)",
		},
		[]string{"peer", "state"},
	)

	// DisconnectsTotal counts peer disconnects by reason.
	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diameter_disconnects_total",
			Help: "Total number of peer disconnects by reason",
		},
		[]string{"peer", "reason"},
	)

	// DuplicateMessagesTotal counts messages recognized as retransmissions
	// via the end-to-end id duplicate-detection cache.
	DuplicateMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diameter_duplicate_messages_total",
			Help: "Total number of inbound messages recognized as duplicates",
		},
		[]string{"peer"},
	)
)
