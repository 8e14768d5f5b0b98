package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	documentsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_documents_created_total",
		Help: "Documents created by ingestion channel",
	}, []string{"source"})

	deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_deliveries_total",
		Help: "Inbound deliveries by channel and outcome",
	}, []string{"source", "outcome"})

	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_stage_transitions_total",
		Help: "Recorded stage transitions by target status",
	}, []string{"to_status"})

	enqueueFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_enqueue_failures_total",
		Help: "Job publish failures by queue",
	}, []string{"queue"})

	gateDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_quality_gate_decisions_total",
		Help: "Quality gate decisions",
	}, []string{"decision"})

	retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_retries_total",
		Help: "Retries by target stage",
	}, []string{"stage"})

	workerResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_worker_results_total",
		Help: "Worker result messages by outcome",
	}, []string{"outcome"})

	workerMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_worker_messages_total",
		Help: "Results-queue messages by delivery outcome",
	}, []string{"outcome"})

	rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_http_rate_limited_total",
		Help: "Requests rejected by the API rate limiter",
	}, []string{"group"})

	qualityScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "intake_quality_score",
		Help:    "Quality gate score distribution",
		Buckets: []float64{10, 25, 40, 55, 70, 85, 100},
	})

	transitionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "intake_transition_duration_ms",
		Help:    "Stage transition unit-of-work duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)

func init() {
	registry.MustRegister(
		documentsCreatedTotal,
		deliveriesTotal,
		transitionsTotal,
		enqueueFailuresTotal,
		gateDecisionsTotal,
		retriesTotal,
		workerResultsTotal,
		workerMessagesTotal,
		rateLimitedTotal,
		qualityScore,
		transitionDuration,
	)
}

// IncDocumentCreated counts a document created from the given upload source.
func IncDocumentCreated(source string) {
	documentsCreatedTotal.WithLabelValues(source).Inc()
}

// IncDelivery counts an inbound delivery outcome (processed, duplicate, filtered, rejected).
func IncDelivery(source, outcome string) {
	deliveriesTotal.WithLabelValues(source, outcome).Inc()
}

// IncTransition counts a committed stage transition.
func IncTransition(toStatus string) {
	transitionsTotal.WithLabelValues(toStatus).Inc()
}

// IncEnqueueFailure counts a failed job publish.
func IncEnqueueFailure(queue string) {
	enqueueFailuresTotal.WithLabelValues(queue).Inc()
}

// IncGateDecision counts a quality gate decision.
func IncGateDecision(decision string) {
	gateDecisionsTotal.WithLabelValues(decision).Inc()
}

// IncRetry counts a retry targeting stage.
func IncRetry(stage string) {
	retriesTotal.WithLabelValues(stage).Inc()
}

// IncWorkerResult counts a processed worker result message.
func IncWorkerResult(outcome string) {
	workerResultsTotal.WithLabelValues(outcome).Inc()
}

// IncWorkerMessage counts a results-queue message by outcome (received, completed, failed, dropped).
func IncWorkerMessage(outcome string) {
	workerMessagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveQualityScore records a gate score.
func ObserveQualityScore(score int) {
	qualityScore.Observe(float64(score))
}

// ObserveTransitionDurationMs records a transition duration in milliseconds.
func ObserveTransitionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	transitionDuration.Observe(value)
}

// Registry exposes the registry for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func IncRateLimited(group string) {
	rateLimitedTotal.WithLabelValues(group).Inc()
}
