package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionsAnalyzed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_questions_analyzed_total",
			Help: "Total audit questions analyzed",
		},
		[]string{"source"},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veritas_analysis_duration_seconds",
			Help:    "Question analysis duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	AgentExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_agent_executions_total",
			Help: "Total agent executions",
		},
		[]string{"tool", "status"},
	)

	AgentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veritas_agent_duration_seconds",
			Help:    "Agent execution duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_llm_requests_total",
			Help: "Total LLM completion requests",
		},
		[]string{"status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	ChatMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_chat_messages_total",
			Help: "Total chat messages processed",
		},
		[]string{"transport"},
	)

	SpreadsheetsUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_spreadsheets_uploaded_total",
			Help: "Total question spreadsheets uploaded",
		},
	)

	ReportsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_reports_generated_total",
			Help: "Total findings reports generated",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(QuestionsAnalyzed)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AgentExecutions)
	prometheus.MustRegister(AgentDuration)
	prometheus.MustRegister(LLMRequests)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(ChatMessages)
	prometheus.MustRegister(SpreadsheetsUploaded)
	prometheus.MustRegister(ReportsGenerated)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
