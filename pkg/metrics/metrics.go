// Package metrics declares the prometheus vectors shared across bot
// binaries, in the style of kubernetes-sigs-prow's prow/hook/events.go
// (label-keyed counters/histograms registered once at package init and
// incremented with prometheus.Labels at the call site).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ChangeLogLagSeconds is the age of the newest committed change
	// relative to the moment UpdateFromSource started, per changelog
	// store file.
	ChangeLogLagSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wikibots_changelog_lag_seconds",
		Help: "Age in seconds of the newest locally committed change.",
	}, []string{"rcdatabasefile"})

	// QueueReadyJobs is the number of ready rows observed by the last
	// enumeration, per handler prefix.
	QueueReadyJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wikibots_queue_ready_jobs",
		Help: "Number of ready jobs observed for a handler prefix.",
	}, []string{"handler_prefix"})

	// QueueOldestReadyAgeSeconds is how long the oldest ready job of a
	// handler prefix has been waiting.
	QueueOldestReadyAgeSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wikibots_queue_oldest_ready_age_seconds",
		Help: "Age in seconds of the oldest ready job for a handler prefix.",
	}, []string{"handler_prefix"})

	// JobRunDuration records how long a single job's Run call took.
	JobRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wikibots_job_run_duration_seconds",
		Help:    "Duration of a single job handler Run call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler_prefix", "outcome"})

	// JobFailuresTotal counts job failures by handler prefix and error
	// level.
	JobFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wikibots_job_failures_total",
		Help: "Total job failures, by handler prefix and error level.",
	}, []string{"handler_prefix", "level"})

	// MutationOutcomesTotal counts PageMutator Write/Edit outcomes.
	MutationOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wikibots_mutation_outcomes_total",
		Help: "Total page mutation attempts, by outcome kind.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ChangeLogLagSeconds,
		QueueReadyJobs,
		QueueOldestReadyAgeSeconds,
		JobRunDuration,
		JobFailuresTotal,
		MutationOutcomesTotal,
	)
}
