package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics. Every Record method is safe to call
// on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics (worker ops server)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Model API metrics
	ModelRequestsTotal   *prometheus.CounterVec
	ModelRequestDuration *prometheus.HistogramVec
	ModelTokensUsed      *prometheus.CounterVec
	ModelCostTotal       prometheus.Counter
	ModelCacheHits       prometheus.Counter
	ModelCacheMisses     prometheus.Counter
	BreakerState         *prometheus.GaugeVec

	// Pipeline metrics
	ParseFallbacks    *prometheus.CounterVec
	StageRunsTotal    *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	IssuesFound       *prometheus.CounterVec
	ChunksAnalyzed    *prometheus.CounterVec
	CaptionsTotal     *prometheus.CounterVec
	FilesWritten      *prometheus.CounterVec
	PipelineRunsTotal *prometheus.CounterVec

	// Temporal workflow metrics
	WorkflowsStarted   *prometheus.CounterVec
	WorkflowsCompleted *prometheus.CounterVec
	ActivitiesExecuted *prometheus.CounterVec
}

// NewMetrics creates a metrics instance on its own registry
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "a11yforge"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),

		// Model API metrics
		ModelRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_requests_total",
				Help:      "Total number of model API requests",
			},
			[]string{"model", "purpose", "status"},
		),
		ModelRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_request_duration_seconds",
				Help:      "Model API request duration in seconds",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"model", "purpose"},
		),
		ModelTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_tokens_used_total",
				Help:      "Total number of tokens used",
			},
			[]string{"model", "type"}, // type: input, output
		),
		ModelCostTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_cost_usd_total",
				Help:      "Total estimated cost in USD",
			},
		),
		ModelCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_cache_hits_total",
				Help:      "Total number of response cache hits",
			},
		),
		ModelCacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_cache_misses_total",
				Help:      "Total number of response cache misses",
			},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		// Pipeline metrics
		ParseFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_fallbacks_total",
				Help:      "Model responses that fell back to a default value",
			},
			[]string{"shape"},
		),
		StageRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_runs_total",
				Help:      "Pipeline stage executions by outcome",
			},
			[]string{"stage", "status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		IssuesFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_found_total",
				Help:      "Accessibility issues reported by the analyzers",
			},
			[]string{"language"},
		),
		ChunksAnalyzed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_analyzed_total",
				Help:      "Content chunks sent for analysis",
			},
			[]string{"profile"},
		),
		CaptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captions_total",
				Help:      "Image captions by outcome",
			},
			[]string{"status"},
		),
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_written_total",
				Help:      "Files written to the output tree",
			},
			[]string{"language", "source"}, // source: corrected, original
		),
		PipelineRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Completed pipeline runs by outcome",
			},
			[]string{"status"},
		),

		// Temporal workflow metrics
		WorkflowsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_started_total",
				Help:      "Total number of workflows started",
			},
			[]string{"workflow_type"},
		),
		WorkflowsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_completed_total",
				Help:      "Total number of workflows completed",
			},
			[]string{"workflow_type", "status"},
		),
		ActivitiesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activities_executed_total",
				Help:      "Total number of activities executed",
			},
			[]string{"activity_type", "status"},
		),
	}

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the current values to a Pushgateway
func (m *Metrics) Push(url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.registry).Push()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordModelRequest records model API metrics
func (m *Metrics) RecordModelRequest(model, purpose, status string, duration time.Duration, inputTokens, outputTokens int, cost float64) {
	if m == nil {
		return
	}
	m.ModelRequestsTotal.WithLabelValues(model, purpose, status).Inc()
	m.ModelRequestDuration.WithLabelValues(model, purpose).Observe(duration.Seconds())
	m.ModelTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.ModelTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
	m.ModelCostTotal.Add(cost)
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.ModelCacheHits.Inc()
}

// RecordCacheMiss records a response cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.ModelCacheMisses.Inc()
}

// RecordBreakerState records a circuit breaker state change
func (m *Metrics) RecordBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordParseFallback records a response that did not parse
func (m *Metrics) RecordParseFallback(shape string) {
	if m == nil {
		return
	}
	m.ParseFallbacks.WithLabelValues(shape).Inc()
}

// RecordStage records a pipeline stage outcome
func (m *Metrics) RecordStage(stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageRunsTotal.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordIssues records issues found for one language
func (m *Metrics) RecordIssues(language string, count int) {
	if m == nil {
		return
	}
	m.IssuesFound.WithLabelValues(language).Add(float64(count))
}

// RecordChunks records chunks sent for analysis
func (m *Metrics) RecordChunks(profile string, count int) {
	if m == nil {
		return
	}
	m.ChunksAnalyzed.WithLabelValues(profile).Add(float64(count))
}

// RecordCaption records a caption outcome
func (m *Metrics) RecordCaption(status string) {
	if m == nil {
		return
	}
	m.CaptionsTotal.WithLabelValues(status).Inc()
}

// RecordFileWritten records a file written to the output tree
func (m *Metrics) RecordFileWritten(language, source string) {
	if m == nil {
		return
	}
	m.FilesWritten.WithLabelValues(language, source).Inc()
}

// RecordPipelineRun records a completed run
func (m *Metrics) RecordPipelineRun(status string) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(status).Inc()
}

// RecordWorkflowStart records workflow start
func (m *Metrics) RecordWorkflowStart(workflowType string) {
	if m == nil {
		return
	}
	m.WorkflowsStarted.WithLabelValues(workflowType).Inc()
}

// RecordWorkflowComplete records workflow completion
func (m *Metrics) RecordWorkflowComplete(workflowType, status string) {
	if m == nil {
		return
	}
	m.WorkflowsCompleted.WithLabelValues(workflowType, status).Inc()
}

// RecordActivityExecution records activity execution
func (m *Metrics) RecordActivityExecution(activityType, status string) {
	if m == nil {
		return
	}
	m.ActivitiesExecuted.WithLabelValues(activityType, status).Inc()
}

// HTTPMiddleware returns middleware for recording HTTP metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
