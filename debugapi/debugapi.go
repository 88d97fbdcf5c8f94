// Package debugapi implements the read-only introspection surface
// described in SPEC_FULL.md's ambient stack: health, metrics, and a
// store listing, mounted on one gorilla/mux router, grounded on the
// teacher's registry/handlers router-plus-middleware-chain shape
// (app.go's router field, wrapped by gorhandlers.CombinedLoggingHandler
// in registry.go). It is operational tooling around the Directory
// Store, never the GUI front-ends spec.md places out of scope.
package debugapi

import (
	"encoding/json"
	"net/http"
	"os"

	metrics "github.com/docker/go-metrics"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/zeroinstall-go/zerostore/health"
	"github.com/zeroinstall-go/zerostore/manifest"
)

// Store is the subset of *store.Store this package reads from.
type Store interface {
	ListAll() ([]string, error)
	Path(d manifest.Digest) (string, error)
}

// Options configures the router NewRouter builds.
type Options struct {
	// AccessLog writes a combined-format line for every request when true.
	AccessLog bool
}

// NewRouter builds the debug API's http.Handler: GET /healthz (overall
// liveness, backed by registry), GET /debug/health (the teacher's
// original path, kept as an alias), GET /metrics (docker/go-metrics
// Prometheus exposition), GET /store (digest listing), and
// GET /store/{digest} (stat one installed implementation).
func NewRouter(registry *health.Registry, st Store, opts Options) http.Handler {
	router := mux.NewRouter().StrictSlash(true)

	router.HandleFunc("/healthz", newStatusHandler(registry))
	router.HandleFunc("/debug/health", newStatusHandler(registry))
	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc("/store", storeListHandler(st))
	router.HandleFunc("/store/{digest}", storeStatHandler(st))

	var h http.Handler = router
	if opts.AccessLog {
		h = handlers.CombinedLoggingHandler(os.Stdout, h)
	}
	return h
}

func newStatusHandler(registry *health.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := registry.CheckStatus(r.Context())
		status := http.StatusOK
		if len(checks) != 0 {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(checks)
	}
}

func storeListHandler(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := st.ListAll()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(names)
	}
}

func storeStatHandler(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		digestStr := mux.Vars(r)["digest"]
		d, ok := manifest.ParseDigestString(digestStr)
		if !ok {
			http.Error(w, "invalid digest string", http.StatusBadRequest)
			return
		}
		path, err := st.Path(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"digest": digestStr, "path": path})
	}
}
