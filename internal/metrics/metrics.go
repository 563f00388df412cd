// Package metrics exposes the server's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedUsers tracks users that completed username selection.
	ConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_users",
		Help: "Number of users currently connected and named.",
	})

	// Groups tracks live groups including the global group.
	Groups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_groups",
		Help: "Number of live groups.",
	})

	// FramesIn counts frames received from clients.
	FramesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_frames_in_total",
		Help: "Total client frames decoded.",
	})

	// Broadcasts counts group fan-outs (one per group send, not per receiver).
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcasts_total",
		Help: "Total group broadcast operations.",
	})

	// SendFailures counts per-receiver send errors, which are logged and
	// suppressed (delivery is best-effort).
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_send_failures_total",
		Help: "Total per-receiver socket send failures.",
	})

	// RejectedConns counts connections turned away by the user cap.
	RejectedConns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_rejected_connections_total",
		Help: "Connections refused with SERVER_FULL.",
	})
)
