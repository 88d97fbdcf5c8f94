package scheduler

import metrics "github.com/docker/go-metrics"

var schedulerNamespace = metrics.NewNamespace("zerostore", "scheduler", nil)

type schedulerMetrics struct {
	active    metrics.Gauge
	completed metrics.Counter
	failed    metrics.Counter
	resumed   metrics.Counter
	bytes     metrics.Counter
}

func newSchedulerMetrics() *schedulerMetrics {
	return &schedulerMetrics{
		active:    schedulerNamespace.NewGauge("active_downloads", "downloads currently transferring", metrics.Total),
		completed: schedulerNamespace.NewCounter("completed_total", "downloads that finished successfully"),
		failed:    schedulerNamespace.NewCounter("failed_total", "downloads that exhausted their retry budget"),
		resumed:   schedulerNamespace.NewCounter("resumed_total", "downloads restarted with a Range request"),
		bytes:     schedulerNamespace.NewCounter("bytes_total", "bytes written to disk across all downloads"),
	}
}

func init() {
	metrics.Register(schedulerNamespace)
}
