package fetch

import metrics "github.com/docker/go-metrics"

var fetchNamespace = metrics.NewNamespace("zerostore", "fetch", nil)

type fetchMetrics struct {
	fetches  metrics.LabeledTimer
	skipped  metrics.Counter
	deduped  metrics.Counter
	failures metrics.Counter
}

func newFetchMetrics() *fetchMetrics {
	return &fetchMetrics{
		fetches:  fetchNamespace.NewLabeledTimer("duration_seconds", "time to fetch one implementation", "method"),
		skipped:  fetchNamespace.NewCounter("skipped_total", "implementations already present in the store"),
		deduped:  fetchNamespace.NewCounter("deduped_total", "fetches that joined an in-flight fetch for the same digest"),
		failures: fetchNamespace.NewCounter("failed_total", "implementations that failed to fetch"),
	}
}

func init() {
	metrics.Register(fetchNamespace)
}
