// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request counter
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "support",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTP request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "support",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	// Messages stored by the relay, by direction (outbound = visitor to Telegram)
	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "support",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Messages stored by the relay and whether they reached the other side",
		},
		[]string{"direction", "outcome"},
	)

	// Telegram Bot API calls
	GatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "support",
			Subsystem: "telegram",
			Name:      "calls_total",
			Help:      "Telegram Bot API calls by method and result",
		},
		[]string{"operation", "status"},
	)

	// Webhook updates by what the relay did with them
	WebhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "support",
			Subsystem: "webhook",
			Name:      "updates_total",
			Help:      "Telegram webhook updates by handling result",
		},
		[]string{"result"},
	)
)

// Relay outcomes
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"

	OutcomeRelayed    = "relayed"
	OutcomeStoredOnly = "stored_only"
)

// Webhook results
const (
	WebhookStored        = "stored"
	WebhookWrongChat     = "wrong_chat"
	WebhookNoThread      = "no_thread"
	WebhookBotMessage    = "bot_message"
	WebhookUnknownThread = "unknown_thread"
	WebhookEmpty         = "empty"
	WebhookIgnored       = "ignored"
	WebhookFailed        = "failed"
)

// ObserveGatewayCall records the result of one Telegram API call
func ObserveGatewayCall(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	GatewayCallsTotal.WithLabelValues(operation, status).Inc()
}
