package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsAdmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tipificador",
			Name:      "jobs_admitted_total",
			Help:      "Total jobs admitted by result (ok, bad_input, too_large, corrupt_pdf)",
		},
		[]string{"result"},
	)

	pagesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tipificador",
			Name:      "pages_classified_total",
			Help:      "Total pages classified, labeled by category",
		},
		[]string{"category"},
	)

	ocrTierInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tipificador",
			Name:      "ocr_tier_invocations_total",
			Help:      "OCR tier invocations by tier (embedded, header, full) and result",
		},
		[]string{"tier", "result"},
	)

	ocrTierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tipificador",
			Name:      "ocr_tier_duration_seconds",
			Help:      "Duration of each OCR tier invocation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	assemblyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tipificador",
			Name:      "assembly_duration_seconds",
			Help:      "Duration of the assembly stage (concatenate + zip)",
			Buckets:   prometheus.DefBuckets,
		},
	)

	batchPackagesByStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tipificador",
			Name:      "batch_packages_total",
			Help:      "Batch packages reaching a terminal status",
		},
		[]string{"status"},
	)

	batchWorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tipificador",
			Name:      "batch_workers_active",
			Help:      "Number of batch background workers currently running",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(
		jobsAdmitted,
		pagesClassified,
		ocrTierInvocations,
		ocrTierDuration,
		assemblyDuration,
		batchPackagesByStatus,
		batchWorkersActive,
	)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncJobAdmitted(result string) { jobsAdmitted.WithLabelValues(result).Inc() }

func IncPageClassified(category string) { pagesClassified.WithLabelValues(category).Inc() }

func ObserveOcrTier(tier, result string, dur time.Duration) {
	ocrTierInvocations.WithLabelValues(tier, result).Inc()
	ocrTierDuration.WithLabelValues(tier).Observe(dur.Seconds())
}

func ObserveAssembly(dur time.Duration) { assemblyDuration.Observe(dur.Seconds()) }

func IncBatchPackageStatus(status string) { batchPackagesByStatus.WithLabelValues(status).Inc() }

func IncBatchWorkers() { batchWorkersActive.Inc() }
func DecBatchWorkers() { batchWorkersActive.Dec() }
