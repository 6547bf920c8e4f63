package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatTurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lever_lab_chat_turn_duration_seconds",
			Help:    "Chat turn duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"path"},
	)

	ChatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_chat_turns_total",
			Help: "Total chat turns by answer path",
		},
		[]string{"path"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_llm_calls_total",
			Help: "LLM calls by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	LLMRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lever_lab_llm_retries_total",
			Help: "LLM completion attempts repeated after a transient failure",
		},
	)

	LLMBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lever_lab_llm_breaker_state",
			Help: "LLM circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	SQLExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_sql_executions_total",
			Help: "Assistant query executions by status",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	TimelineRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_timeline_requests_total",
			Help: "Timeline alignment requests by status",
		},
		[]string{"status"},
	)

	SimulationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lever_lab_simulation_requests_total",
			Help: "Simulation requests by status",
		},
		[]string{"status"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lever_lab_active_sessions",
			Help: "Chat sessions currently held in memory",
		},
	)
)

func Init() {
	prometheus.MustRegister(ChatTurnDuration)
	prometheus.MustRegister(ChatTurnsTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(LLMRetries)
	prometheus.MustRegister(LLMBreakerState)
	prometheus.MustRegister(SQLExecutions)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(TimelineRequests)
	prometheus.MustRegister(SimulationRequests)
	prometheus.MustRegister(ActiveSessions)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
