package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Completion calls by kind (chat, vision) and outcome
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "completions_total",
			Help:      "Total chat-completion calls",
		},
		[]string{"kind", "model", "status"},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "completion_duration_seconds",
			Help:      "Chat-completion call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind", "model"},
	)

	CompletionTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "completion_tokens_total",
			Help:      "Tokens reported by the completion endpoint",
		},
		[]string{"kind", "model", "type"},
	)

	// Attachments received, by class (image, text)
	AttachmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "attachments_total",
			Help:      "Total attachments received",
		},
		[]string{"class"},
	)

	AttachmentBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "attachment_bytes_total",
			Help:      "Total attachment bytes received",
		},
		[]string{"class"},
	)

	// History store operations
	HistoryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "history_operations_total",
			Help:      "Total conversation history operations",
		},
		[]string{"backend", "operation", "status"},
	)

	ConversationsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "conversations_purged_total",
			Help:      "Conversations removed by the idle sweeper",
		},
	)

	// Chat turns by outcome and response mode
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "chat_turns_total",
			Help:      "Total chat turns handled",
		},
		[]string{"outcome", "mode"},
	)

	// Reply file storage operations
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "storage_operations_total",
			Help:      "Total reply file storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "malan",
			Subsystem: "chat_api",
			Name:      "storage_duration_seconds",
			Help:      "Reply file storage operation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"backend", "operation"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordCompletion records one chat-completion call
func RecordCompletion(kind, model, status string, durationSec float64) {
	CompletionsTotal.WithLabelValues(kind, model, status).Inc()
	CompletionDuration.WithLabelValues(kind, model).Observe(durationSec)
}

// RecordTokens records token usage reported by the endpoint
func RecordTokens(kind, model string, prompt, completion int) {
	if prompt > 0 {
		CompletionTokensTotal.WithLabelValues(kind, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		CompletionTokensTotal.WithLabelValues(kind, model, "completion").Add(float64(completion))
	}
}

// RecordAttachment records one received attachment
func RecordAttachment(class string, bytes int) {
	AttachmentsTotal.WithLabelValues(class).Inc()
	AttachmentBytesTotal.WithLabelValues(class).Add(float64(bytes))
}

// RecordChatTurn records one finished chat turn
func RecordChatTurn(outcome, mode string) {
	ChatTurnsTotal.WithLabelValues(outcome, mode).Inc()
}

// RecordHistoryOperation records a history store call
func RecordHistoryOperation(backend, operation string, err error) {
	HistoryOperationsTotal.WithLabelValues(backend, operation, statusOf(err)).Inc()
}

// RecordPurge records conversations removed by the sweeper
func RecordPurge(count int) {
	if count > 0 {
		ConversationsPurgedTotal.Add(float64(count))
	}
}

// RecordStorageOperation records a reply file storage call
func RecordStorageOperation(backend, operation string, err error, durationSec float64) {
	StorageOperationsTotal.WithLabelValues(backend, operation, statusOf(err)).Inc()
	StorageDuration.WithLabelValues(backend, operation).Observe(durationSec)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
