package metrics

import (
	"github.com/livepeer/dubworker/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics is the common shape used by every outbound HTTP client
// wrapped with metrics.MonitorRequest (download, transcribe, translate).
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var stageLabels = []string{"stage"}

// Metrics is the process-wide registry, in the same shape as
// CatalystAPIMetrics (prometheus/client_golang).
type Metrics struct {
	Version prometheus.CounterVec

	JobsInFlight         prometheus.Gauge
	HTTPRequestsInFlight prometheus.Gauge
	QueueDepth           *prometheus.GaugeVec

	SubmitRequestCount       *prometheus.CounterVec
	SubmitRequestDurationSec *prometheus.SummaryVec

	StageDurationSec  *prometheus.HistogramVec
	StageFailureCount *prometheus.CounterVec

	TaskTerminalCount *prometheus.CounterVec

	DownloadClient    ClientMetrics
	TranscribeClient  ClientMetrics
	TranslateClient   ClientMetrics
	ObjectStoreClient ClientMetrics
}

func newClientMetrics(name string) ClientMetrics {
	return ClientMetrics{
		RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: name + "_retry_count",
			Help: "The number of retried " + name + " requests",
		}, []string{"host"}),
		FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: name + "_failure_count",
			Help: "The total number of failed " + name + " requests",
		}, []string{"host", "status_code"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name + "_request_duration_seconds",
			Help:    "Time taken to complete " + name + " requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"host"}),
	}
}

func New() *Metrics {
	m := &Metrics{
		Version: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current version that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Number of pipeline tasks currently being processed by this worker",
		}),
		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of intake HTTP requests currently in flight",
		}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of messages waiting in a broker queue",
		}, []string{"queue"}),

		SubmitRequestCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "submit_request_count",
			Help: "Number of submissions to the processing endpoints",
		}, []string{"endpoint", "status_code"}),
		SubmitRequestDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "submit_request_duration_seconds",
			Help: "Latency of submission requests",
		}, []string{"endpoint", "status_code"}),

		StageDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stage_duration_seconds",
			Help:    "Time taken by each pipeline stage",
			Buckets: []float64{.5, 1, 5, 15, 30, 60, 120, 300, 900},
		}, stageLabels),
		StageFailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stage_failure_count",
			Help: "Number of pipeline stage failures",
		}, append(stageLabels, "code")),

		TaskTerminalCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "task_terminal_count",
			Help: "Number of tasks that reached a terminal state",
		}, []string{"state", "code"}),

		DownloadClient:    newClientMetrics("download_client"),
		TranscribeClient:  newClientMetrics("transcribe_client"),
		TranslateClient:   newClientMetrics("translate_client"),
		ObjectStoreClient: newClientMetrics("object_store_client"),
	}

	m.Version.WithLabelValues("dubworker", config.Version).Inc()
	return m
}

var Default = New()
