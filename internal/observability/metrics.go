package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	registry *prometheus.Registry

	embeddingTotal    *prometheus.CounterVec
	embeddingDuration prometheus.Histogram
	indexDocuments    prometheus.Gauge
	retrievalDuration prometheus.Histogram

	chatTotal    *prometheus.CounterVec
	chatDuration prometheus.Histogram

	toolInvocationTotal    *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec
	retryAttemptsTotal     *prometheus.CounterVec
	channelInitTotal       *prometheus.CounterVec

	runTotal    *prometheus.CounterVec
	runDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			registry: prometheus.NewRegistry(),
			embeddingTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragent_embedding_requests_total",
					Help: "Total embedding requests by status.",
				},
				[]string{"status"},
			),
			embeddingDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ragent_embedding_duration_seconds",
					Help:    "Embedding request duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			indexDocuments: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "ragent_index_documents",
					Help: "Documents currently held by the similarity index.",
				},
			),
			retrievalDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ragent_retrieval_duration_seconds",
					Help:    "Retrieval query duration in seconds, embedding included.",
					Buckets: prometheus.DefBuckets,
				},
			),
			chatTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragent_chat_requests_total",
					Help: "Total chat completion requests by provider and status.",
				},
				[]string{"provider", "status"},
			),
			chatDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ragent_chat_duration_seconds",
					Help:    "Chat completion duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			toolInvocationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragent_tool_invocations_total",
					Help: "Total tool invocations by channel, tool, route and status.",
				},
				[]string{"channel", "tool", "route", "status"},
			),
			toolInvocationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ragent_tool_invocation_duration_seconds",
					Help:    "Tool invocation duration in seconds, retries included.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"channel", "tool"},
			),
			retryAttemptsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragent_retry_attempts_total",
					Help: "Failed attempts that were retried, by channel and operation.",
				},
				[]string{"channel", "op"},
			),
			channelInitTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragent_channel_initializations_total",
					Help: "Tool channel initializations by channel and status.",
				},
				[]string{"channel", "status"},
			),
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragent_runs_total",
					Help: "Orchestrator runs by outcome stage.",
				},
				[]string{"stage", "status"},
			),
			runDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ragent_run_duration_seconds",
					Help:    "Orchestrator run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		m.registry.MustRegister(
			m.embeddingTotal,
			m.embeddingDuration,
			m.indexDocuments,
			m.retrievalDuration,
			m.chatTotal,
			m.chatDuration,
			m.toolInvocationTotal,
			m.toolInvocationDuration,
			m.retryAttemptsTotal,
			m.channelInitTotal,
			m.runTotal,
			m.runDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// Registry exposes the process registry (tests gather from it).
func Registry() *prometheus.Registry {
	return getMetrics().registry
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, getMetrics().registry)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordEmbedding(duration time.Duration, success bool) {
	m := getMetrics()
	m.embeddingTotal.WithLabelValues(statusLabel(success)).Inc()
	m.embeddingDuration.Observe(duration.Seconds())
}

func SetIndexDocuments(total int) {
	m := getMetrics()
	m.indexDocuments.Set(float64(total))
}

func RecordRetrieval(duration time.Duration) {
	m := getMetrics()
	m.retrievalDuration.Observe(duration.Seconds())
}

func RecordChat(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.chatTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.chatDuration.Observe(duration.Seconds())
}

func RecordToolInvocation(channel, tool, route string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolInvocationTotal.WithLabelValues(channel, tool, route, statusLabel(success)).Inc()
	m.toolInvocationDuration.WithLabelValues(channel, tool).Observe(duration.Seconds())
}

func RecordRetry(channel, op string) {
	m := getMetrics()
	m.retryAttemptsTotal.WithLabelValues(channel, op).Inc()
}

func RecordChannelInit(channel string, success bool) {
	m := getMetrics()
	m.channelInitTotal.WithLabelValues(channel, statusLabel(success)).Inc()
}

func RecordRun(stage string, duration time.Duration, success bool) {
	m := getMetrics()
	m.runTotal.WithLabelValues(stage, statusLabel(success)).Inc()
	m.runDuration.Observe(duration.Seconds())
}
