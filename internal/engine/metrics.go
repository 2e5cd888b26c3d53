package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pointcloud/backend/internal/model"
)

var (
	jobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pointcloud_jobs_submitted_total",
			Help: "Total number of jobs submitted.",
		},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointcloud_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointcloud_jobs_active",
			Help: "Number of jobs currently progressing in the background.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmitted)
	prometheus.MustRegister(jobsFinished)
	prometheus.MustRegister(activeJobs)

	jobsFinished.WithLabelValues(model.StatusSucceeded)
	jobsFinished.WithLabelValues(model.StatusFailed)
}
