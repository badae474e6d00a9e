package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	uploadCounter         *prometheus.CounterVec
	queueDepthGauge       *prometheus.GaugeVec
	workerRunCounter      *prometheus.CounterVec
	decryptFailureCounter prometheus.Counter
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		uploadCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_uploads_total",
			Help: "Upload attempts against the remote ledger by outcome",
		}, []string{"kind", "outcome"})

		queueDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current staged and committed queue depths",
		}, []string{"queue"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Sync worker drain outcomes by final state",
		}, []string{"state"})

		decryptFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "store_decrypt_failures_total",
			Help: "Number of times the encrypted store failed to decrypt and was cleared",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			uploadCounter,
			queueDepthGauge,
			workerRunCounter,
			decryptFailureCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementUpload(kind, outcome string) {
	if uploadCounter == nil {
		return
	}
	uploadCounter.WithLabelValues(kind, outcome).Inc()
}

func SetQueueDepth(queue string, depth int) {
	if queueDepthGauge == nil {
		return
	}
	queueDepthGauge.WithLabelValues(queue).Set(float64(depth))
}

func IncrementWorkerRun(state string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(state).Inc()
}

func IncrementDecryptFailure() {
	if decryptFailureCounter == nil {
		return
	}
	decryptFailureCounter.Inc()
}
