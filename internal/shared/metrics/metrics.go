package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every docgen collector. It is private so tests and handlers see only these series.
var Registry = prometheus.NewRegistry()

var (
	jobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docgen_jobs_started_total",
		Help: "Jobs picked up by an orchestrator run, by job type and trigger.",
	}, []string{"job_type", "trigger"})

	jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docgen_jobs_finished_total",
		Help: "Orchestrator runs that reached a terminal state.",
	}, []string{"job_type", "status"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docgen_job_duration_seconds",
		Help:    "Wall time of one orchestrator run.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"job_type"})

	sectionsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docgen_sections_generated_total",
		Help: "Sections appended to a checkpoint.",
	}, []string{"job_type"})

	generationCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docgen_generation_calls_total",
		Help: "Generation client calls by outcome.",
	}, []string{"outcome"})

	generationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docgen_generation_duration_seconds",
		Help:    "Latency of provider calls that reached the generation service.",
		Buckets: prometheus.DefBuckets,
	})

	workerBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docgen_worker_busy",
		Help: "Jobs currently being processed by this process.",
	})

	queueMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docgen_queue_messages_total",
		Help: "Queue messages handled by the worker, by outcome.",
	}, []string{"outcome"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docgen_http_requests_total",
		Help: "HTTP requests by route and status class.",
	}, []string{"route", "status"})
)

func init() {
	Registry.MustRegister(
		jobsStarted, jobsFinished, jobDuration,
		sectionsGenerated, generationCalls, generationDuration,
		workerBusy, queueMessages, httpRequests,
	)
}

// IncJobStarted counts an orchestrator run. trigger is "worker", "poll" or "resume".
func IncJobStarted(jobType, trigger string) {
	jobsStarted.WithLabelValues(jobType, trigger).Inc()
}

// IncJobFinished counts a terminal state write.
func IncJobFinished(jobType, status string) {
	jobsFinished.WithLabelValues(jobType, status).Inc()
}

func ObserveJobDuration(jobType string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func IncSectionGenerated(jobType string) {
	sectionsGenerated.WithLabelValues(jobType).Inc()
}

// IncGeneration counts a generation call outcome: cache_hit, ok, timeout, rate_limited, upstream_error, rejected.
func IncGeneration(outcome string) {
	generationCalls.WithLabelValues(outcome).Inc()
}

func ObserveGenerationDuration(d time.Duration) {
	generationDuration.Observe(d.Seconds())
}

func WorkerBusyInc() { workerBusy.Inc() }

func WorkerBusyDec() { workerBusy.Dec() }

// IncQueueMessage counts a handled queue message: received, completed, skipped, failed, unrecoverable.
func IncQueueMessage(outcome string) {
	queueMessages.WithLabelValues(outcome).Inc()
}

// IncHTTPRequest counts a served request. route is the matched gin path.
func IncHTTPRequest(route string, status int) {
	httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
