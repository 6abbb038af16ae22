package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kexpand_jobs_items_total",
		Help: "Processed job items by job kind and outcome",
	}, []string{"kind", "outcome"})

	itemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kexpand_jobs_item_duration_seconds",
		Help:    "Time to process one item through the pipeline",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind"})

	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kexpand_jobs_active",
		Help: "Jobs that are running or paused",
	})

	autoPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kexpand_jobs_auto_pauses_total",
		Help: "Jobs paused because their error rate exceeded the threshold",
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kexpand_jobs_transitions_total",
		Help: "Job status transitions by target status",
	}, []string{"status"})
)
