// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexi_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexi_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// LLMDuration tracks language model call duration.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexi_llm_duration_seconds",
			Help:    "Language model completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks tokens consumed by completions.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexi_llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// TurnsTotal tracks submitted turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexi_turns_total",
			Help: "Turns submitted, by outcome",
		},
		[]string{"outcome"},
	)

	// ConversationsStarted tracks started sessions.
	ConversationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexi_conversations_started_total",
			Help: "Conversations started",
		},
	)

	// MessagesTotal tracks persisted messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexi_messages_total",
			Help: "Messages persisted",
		},
		[]string{"role"},
	)

	// ConversationsPruned tracks conversations removed by retention.
	ConversationsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexi_conversations_pruned_total",
			Help: "Conversations deleted by the retention sweep",
		},
		[]string{"trigger"},
	)

	// AudioStreamsActive tracks registered audio streams.
	AudioStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexi_audio_streams_active",
			Help: "Audio streams currently held in the registry",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordLLMCall records metrics for a language model completion.
func RecordLLMCall(provider, status string, duration float64, tokensIn, tokensOut int) {
	LLMDuration.WithLabelValues(provider, status).Observe(duration)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
	}
}

// RecordPruned records conversations deleted by a retention pass.
func RecordPruned(trigger string, n int64) {
	if n > 0 {
		ConversationsPruned.WithLabelValues(trigger).Add(float64(n))
	}
}
