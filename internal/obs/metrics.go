// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podcastd_jobs_ingested_total",
		Help: "Total number of generation jobs accepted by the ingest server",
	})
	JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podcastd_jobs_completed_total",
		Help: "Total number of jobs that reached the COMPLETED stage",
	})
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podcastd_jobs_failed_total",
		Help: "Total number of jobs that reached the FAILED stage",
	})
	JobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podcastd_jobs_cancelled_total",
		Help: "Total number of jobs cancelled before completion",
	})
	JobsTimedOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podcastd_jobs_timed_out_total",
		Help: "Total number of jobs that exceeded a stage timeout budget",
	})
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podcastd_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	ProviderRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podcastd_provider_rotations_total",
		Help: "Count of provider fallback rotations by kind",
	}, []string{"kind"})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podcastd_queue_depth",
		Help: "Number of tickets currently in a queue directory",
	}, []string{"dir"})
	EpisodesStored = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podcastd_episodes_stored",
		Help: "Number of episodes currently retained per user",
	}, []string{"user"})
)

func init() {
	prometheus.MustRegister(
		JobsIngested, JobsCompleted, JobsFailed, JobsCancelled, JobsTimedOut,
		StageDuration, ProviderRotations, QueueDepth, EpisodesStored,
	)
}
