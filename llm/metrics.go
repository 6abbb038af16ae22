package llm

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/poiesic/kexpand/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kexpand_llm_requests_total",
		Help: "Model call attempts by outcome",
	}, []string{"model", "outcome"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kexpand_llm_request_duration_seconds",
		Help:    "Model call latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"model"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kexpand_llm_tokens_total",
		Help: "Tokens consumed by type",
	}, []string{"model", "type"})

	costTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kexpand_llm_cost_usd_total",
		Help: "Estimated spend in USD",
	}, []string{"model"})

	degradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kexpand_llm_degraded_total",
		Help: "Times a model was marked degraded",
	}, []string{"model"})

	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kexpand_llm_fallbacks_total",
		Help: "Cascades from one model to the next in a chain",
	})
)

// nanoUSD converts between dollars and the integer unit cost is accumulated in.
const nanoUSD = 1e9

// modelMetrics accumulates counters for one model. All fields are atomics so
// concurrent jobs can record without locking.
type modelMetrics struct {
	requests         atomic.Int64
	errors           atomic.Int64
	latencyNanos     atomic.Int64
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	totalTokens      atomic.Int64
	costNanoUSD      atomic.Int64
	lastUpdated      atomic.Int64
}

func (m *modelMetrics) record(model string, latency time.Duration, usage core.TokenUsage, failed bool) {
	m.requests.Add(1)
	m.latencyNanos.Add(int64(latency))
	m.lastUpdated.Store(time.Now().UnixNano())
	requestLatency.WithLabelValues(model).Observe(latency.Seconds())
	if failed {
		m.errors.Add(1)
		requestsTotal.WithLabelValues(model, "error").Inc()
		return
	}
	requestsTotal.WithLabelValues(model, "success").Inc()

	m.promptTokens.Add(int64(usage.PromptTokens))
	m.completionTokens.Add(int64(usage.CompletionTokens))
	m.totalTokens.Add(int64(usage.TotalTokens))
	m.costNanoUSD.Add(int64(math.Round(usage.Cost * nanoUSD)))
	tokensTotal.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	tokensTotal.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	costTotal.WithLabelValues(model).Add(usage.Cost)
}

// MetricsSnapshot is a point-in-time view of one model's metrics.
type MetricsSnapshot struct {
	Model           string          `json:"model_name"`
	Provider        string          `json:"provider"`
	TotalRequests   int64           `json:"total_requests"`
	ErrorCount      int64           `json:"error_count"`
	AverageLatency  float64         `json:"average_latency"`  // seconds
	TokenThroughput float64         `json:"token_throughput"` // tokens per second of latency
	ErrorRate       float64         `json:"error_rate"`
	WindowErrorRate float64         `json:"window_error_rate"`
	WindowSize      int             `json:"window_size"`
	Degraded        bool            `json:"degraded"`
	TotalTokens     core.TokenUsage `json:"total_tokens"`
	LastUpdated     time.Time       `json:"last_updated"`
}

func (m *modelMetrics) snapshot() MetricsSnapshot {
	requests := m.requests.Load()
	errs := m.errors.Load()
	latency := time.Duration(m.latencyNanos.Load())
	s := MetricsSnapshot{
		TotalRequests: requests,
		ErrorCount:    errs,
		TotalTokens: core.TokenUsage{
			PromptTokens:     int(m.promptTokens.Load()),
			CompletionTokens: int(m.completionTokens.Load()),
			TotalTokens:      int(m.totalTokens.Load()),
			Cost:             float64(m.costNanoUSD.Load()) / nanoUSD,
		},
	}
	if requests > 0 {
		s.AverageLatency = latency.Seconds() / float64(requests)
		s.ErrorRate = float64(errs) / float64(requests)
	}
	if latency > 0 {
		s.TokenThroughput = float64(s.TotalTokens.TotalTokens) / latency.Seconds()
	}
	if ts := m.lastUpdated.Load(); ts > 0 {
		s.LastUpdated = time.Unix(0, ts).UTC()
	}
	return s
}
