// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_started_total",
			Help: "Total number of recommendation pipeline runs admitted",
		},
		[]string{"outcome"},
	)

	PipelineRunsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_failed_total",
			Help: "Total number of pipeline runs that ended terminally",
		},
		[]string{"error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of each pipeline stage in seconds",
		},
		[]string{"task_type"},
	)

	VenueSourceDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_source_degraded_total",
			Help: "Sourcing channels that failed or timed out during a run",
		},
		[]string{"source"},
	)

	GeminiTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_timeouts_total",
			Help: "AI re-ranking calls that exceeded their timeout budget",
		},
	)

	EventsByTransition = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_transitions_total",
			Help: "Lifecycle transitions applied, by trigger and resulting state",
		},
		[]string{"trigger", "to_state"},
	)

	VotesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "votes_recorded_total",
			Help: "Participant votes recorded on shortlisted venues",
		},
	)
)
