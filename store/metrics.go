package store

import (
	"time"

	metrics "github.com/docker/go-metrics"
)

// storeNamespace is this package's docker/go-metrics namespace, grounded on
// distribution-distribution's metrics.StorageNamespace (same library, same
// per-subsystem namespace split).
var storeNamespace = metrics.NewNamespace("zerostore", "store", nil)

// storeMetrics holds every counter/timer a Store instance reports through
// storeNamespace. One instance per Store, mirroring how the teacher's
// prometheusCacheProvider wraps a single latencyTimer per provider.
type storeMetrics struct {
	installs      metrics.LabeledTimer
	verifications metrics.LabeledTimer
	mismatches    metrics.Counter
	removals      metrics.Counter
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		installs:      storeNamespace.NewLabeledTimer("install_duration_seconds", "time spent installing one implementation", "method"),
		verifications: storeNamespace.NewLabeledTimer("verify_duration_seconds", "time spent regenerating and comparing one manifest", "method"),
		mismatches:    storeNamespace.NewCounter("digest_mismatches_total", "implementations rejected for failing digest verification"),
		removals:      storeNamespace.NewCounter("removals_total", "implementations removed from the store"),
	}
}

func init() {
	metrics.Register(storeNamespace)
}

func (m *storeMetrics) observeInstall(method string, start time.Time) {
	m.installs.WithValues(method).UpdateSince(start)
}

func (m *storeMetrics) observeVerify(method string, start time.Time) {
	m.verifications.WithValues(method).UpdateSince(start)
}
