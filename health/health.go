// Package health provides a registry of lightweight liveness checks, kept
// nearly verbatim from the teacher registry's health package: a Checker
// interface, a default Registry, polling Updaters, and an HTTP status
// handler over DefaultRegistry. Unlike the teacher, this package never
// registers itself on the default ServeMux — the debug surface is opt-in:
// debugapi builds its own status handlers over an explicit Registry.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zeroinstall-go/zerostore/internal/dcontext"
)

func init() {
	DefaultRegistry = NewRegistry()
}

// A Registry is a collection of checks. Most applications use the global
// registry defined in DefaultRegistry; tests that need isolation from
// other tests' checks create their own with NewRegistry.
type Registry struct {
	mu               sync.RWMutex
	registeredChecks map[string]Checker
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		registeredChecks: make(map[string]Checker),
	}
}

// DefaultRegistry is the registry used by the package-level Register,
// RegisterFunc, and CheckStatus functions.
var DefaultRegistry *Registry

// Checker is the interface for a health check.
type Checker interface {
	// Check returns nil if the service is okay.
	Check(context.Context) error
}

// CheckFunc adapts an ordinary func(context.Context) error to a Checker.
type CheckFunc func(context.Context) error

func (cf CheckFunc) Check(ctx context.Context) error {
	return cf(ctx)
}

// Updater is a health check whose status is set explicitly rather than
// computed on every Check call — used for checks too expensive to run
// synchronously on every request (see Poll).
type Updater interface {
	Checker
	Update(status error)
}

// updater implements Checker and Updater by remembering the last Update
// call's status and returning it immediately from Check.
type updater struct {
	mu     sync.Mutex
	status error
}

func (u *updater) Check(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

func (u *updater) Update(status error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
}

// NewStatusUpdater returns a new Updater.
func NewStatusUpdater() Updater {
	return &updater{}
}

// thresholdUpdater only reports failure once Update has been called with
// a non-nil error threshold consecutive times — useful for flaky checks
// (a scheduler's transient network probe) that shouldn't flip the whole
// process unhealthy on one bad poll.
type thresholdUpdater struct {
	mu        sync.Mutex
	status    error
	threshold int
	count     int
}

func (tu *thresholdUpdater) Check(context.Context) error {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if tu.count >= tu.threshold || errors.As(tu.status, new(pollingTerminatedErr)) {
		return tu.status
	}
	return nil
}

func (tu *thresholdUpdater) Update(status error) {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if status == nil {
		tu.count = 0
	} else if tu.count < tu.threshold {
		tu.count++
	}
	tu.status = status
}

// NewThresholdStatusUpdater returns an Updater that only reports failure
// after t consecutive failed Update calls.
func NewThresholdStatusUpdater(t int) Updater {
	if t > 0 {
		return &thresholdUpdater{threshold: t}
	}
	return NewStatusUpdater()
}

type pollingTerminatedErr struct{ Err error }

func (e pollingTerminatedErr) Error() string {
	return fmt.Sprintf("health: check is not polled: %v", e.Err)
}

func (e pollingTerminatedErr) Unwrap() error { return e.Err }

// Poll periodically runs c at interval, feeding each result into u, until
// ctx is done.
func Poll(ctx context.Context, u Updater, c Checker, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			u.Update(pollingTerminatedErr{Err: ctx.Err()})
			return
		case <-t.C:
			u.Update(c.Check(ctx))
		}
	}
}

// CheckStatus runs every registered check and returns the error text of
// any that failed, keyed by check name.
func (registry *Registry) CheckStatus(ctx context.Context) map[string]string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	statusKeys := make(map[string]string)
	for k, v := range registry.registeredChecks {
		if err := v.Check(ctx); err != nil {
			statusKeys[k] = err.Error()
		}
	}
	return statusKeys
}

// CheckStatus runs every check in DefaultRegistry.
func CheckStatus(ctx context.Context) map[string]string {
	return DefaultRegistry.CheckStatus(ctx)
}

// Register associates check with name in the registry. Panics on a
// duplicate name, since that always indicates a programming error.
func (registry *Registry) Register(name string, check Checker) {
	if registry == nil {
		registry = DefaultRegistry
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.registeredChecks[name]; ok {
		panic("health: check already exists: " + name)
	}
	registry.registeredChecks[name] = check
}

// Register associates check with name in DefaultRegistry.
func Register(name string, check Checker) {
	DefaultRegistry.Register(name, check)
}

func (registry *Registry) RegisterFunc(name string, check CheckFunc) {
	registry.Register(name, check)
}

func RegisterFunc(name string, check CheckFunc) {
	DefaultRegistry.RegisterFunc(name, check)
}

// StatusHandler serves a JSON object of failing check names to messages
// from DefaultRegistry, 503 if any check failed, 200 otherwise. debugapi
// does not mount it; its /healthz and /debug/health routes use their own
// handler over the Registry passed to NewRouter.
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	checks := CheckStatus(r.Context())
	status := http.StatusOK
	if len(checks) != 0 {
		status = http.StatusServiceUnavailable
	}
	statusResponse(w, r, status, checks)
}

// Handler wraps handler, short-circuiting with 503 whenever a registered
// check is currently failing.
func Handler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := CheckStatus(r.Context())
		if len(checks) != 0 {
			statusResponse(w, r, http.StatusServiceUnavailable, checks)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func statusResponse(w http.ResponseWriter, r *http.Request, status int, checks map[string]string) {
	p, err := json.Marshal(checks)
	if err != nil {
		dcontext.GetLogger(r.Context()).Errorf("error serializing health status: %v", err)
		p, err = json.Marshal(struct {
			ServerError string `json:"server_error"`
		}{ServerError: "could not serialize health status"})
		status = http.StatusInternalServerError
		if err != nil {
			dcontext.GetLogger(r.Context()).Errorf("error serializing health status failure message: %v", err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", fmt.Sprint(len(p)))
	w.WriteHeader(status)
	if _, err := w.Write(p); err != nil {
		dcontext.GetLogger(r.Context()).Errorf("error writing health status response body: %v", err)
	}
}
