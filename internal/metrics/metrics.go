// Package metrics exposes the engine's Prometheus gauges and counters,
// generalizing the teacher's single worker-pool queue-depth gauge to the
// five priority classes of the job pool plus the pipeline/bundle/session
// surfaces the core adds.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepthGauge tracks current job count per priority class.
	QueueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "coreengine",
		Name:      "pool_queue_depth",
		Help:      "Current number of queued jobs, labeled by priority class",
	}, []string{"priority"})

	// ActiveWorkersGauge tracks workers currently executing a job, per class.
	ActiveWorkersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "coreengine",
		Name:      "pool_active_workers",
		Help:      "Current number of workers actively executing a job, labeled by priority class",
	}, []string{"priority"})

	// JobsProcessedCounter counts jobs whose work function returned ok=true.
	JobsProcessedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coreengine",
		Name:      "pool_jobs_processed_total",
		Help:      "Total number of jobs completed successfully, labeled by priority class",
	}, []string{"priority"})

	// JobsFailedCounter counts jobs whose work function returned an error.
	JobsFailedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coreengine",
		Name:      "pool_jobs_failed_total",
		Help:      "Total number of jobs that returned an error, labeled by priority class",
	}, []string{"priority"})

	// FramesCounter counts frames read/written across all pipelines.
	FramesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coreengine",
		Name:      "pipeline_frames_total",
		Help:      "Total number of frames processed, labeled by direction (in/out) and mode",
	}, []string{"direction", "mode"})

	// BytesCounter counts payload bytes (post-framing) read/written.
	BytesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coreengine",
		Name:      "pipeline_bytes_total",
		Help:      "Total payload bytes processed, labeled by direction (in/out)",
	}, []string{"direction"})

	// FramesDroppedCounter counts frames dropped by the framing state machine.
	FramesDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coreengine",
		Name:      "pipeline_frames_dropped_total",
		Help:      "Total number of frames dropped by start/end/length validation",
	})

	// SessionsActiveGauge tracks live server-side sessions.
	SessionsActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coreengine",
		Name:      "server_sessions_active",
		Help:      "Current number of active server sessions",
	})

	// BundlesActiveGauge tracks in-flight file bundles.
	BundlesActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coreengine",
		Name:      "bundle_active",
		Help:      "Current number of bundles awaiting completion",
	})

	// BundlesTimedOutCounter counts bundles removed by the deadline janitor.
	BundlesTimedOutCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coreengine",
		Name:      "bundle_timed_out_total",
		Help:      "Total number of bundles that hit their deadline before completing",
	})
)
