package observability

import (
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rlm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rlm_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Completion metrics
	RecursionDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rlm_recursion_depth",
			Help:    "Maximum recursion depth reached per completion",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	CompletionCalls = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rlm_completion_calls",
			Help:    "Number of model calls per completion",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
	)

	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rlm_completion_duration_seconds",
			Help:    "Total duration of a completion in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s, 2s, 4s, ..., 512s
		},
	)

	CompletionCost = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rlm_completion_cost_usd",
			Help:    "Estimated cost per completion in USD",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	TokenUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rlm_token_usage_total",
			Help: "Total number of tokens used",
		},
		[]string{"model", "type"}, // type: input, output
	)

	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rlm_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: ok, error, budget_exceeded
	)

	SubCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rlm_sub_calls_total",
			Help: "Total number of delegated sub-completions",
		},
	)

	CompletionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rlm_errors_total",
			Help: "Total number of completion errors",
		},
	)
)

func SetupLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
				a.Value = slog.StringValue(time.Now().Format(time.RFC3339))
			}
			return a
		},
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
