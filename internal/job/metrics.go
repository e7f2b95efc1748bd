package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servare",
		Subsystem: "jobs",
		Name:      "claimed_total",
		Help:      "Total number of jobs claimed for execution",
	})
	jobsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servare",
		Subsystem: "jobs",
		Name:      "succeeded_total",
		Help:      "Total number of jobs that finished and were removed",
	})
	jobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servare",
		Subsystem: "jobs",
		Name:      "retried_total",
		Help:      "Total number of handler failures that left the job queued",
	})
	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servare",
		Subsystem: "jobs",
		Name:      "failed_total",
		Help:      "Total number of jobs abandoned after exhausting attempts",
	})
	jobsManaged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servare",
		Subsystem: "jobs",
		Name:      "managed_total",
		Help:      "Total number of jobs created by the manage phase",
	})
)
