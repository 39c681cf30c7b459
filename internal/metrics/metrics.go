// Package metrics exposes Prometheus instrumentation for the widget gateway
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsStarted counts calls that reached the connecting state
	CallsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "widget_calls_started_total",
		Help: "Voice calls initiated through the widget",
	})

	// CallsEnded counts calls by how they terminated
	CallsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "widget_calls_ended_total",
		Help: "Voice calls ended, by outcome",
	}, []string{"outcome"}) // completed, failed, timeout, canceled

	// ActiveCalls tracks calls currently in a non-idle state
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "widget_active_calls",
		Help: "Voice calls currently active",
	})

	// CallDuration observes completed call durations in seconds
	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "widget_call_duration_seconds",
		Help:    "Duration of completed voice calls",
		Buckets: []float64{15, 30, 60, 120, 300, 600, 1200},
	})

	// WebhookRequests counts outbound webhook requests by endpoint and outcome
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "widget_webhook_requests_total",
		Help: "Outbound webhook requests, by endpoint and outcome",
	}, []string{"endpoint", "outcome"}) // outcome: ok, error

	// ChatMessages counts chat relay turns
	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "widget_chat_messages_total",
		Help: "Chat messages relayed, by outcome",
	}, []string{"outcome"}) // ok, throttled, error
)
