package debugapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zeroinstall-go/zerostore/health"
	"github.com/zeroinstall-go/zerostore/manifest"
)

type fakeStore struct {
	names map[string]string // digest string -> path
}

func (f *fakeStore) ListAll() ([]string, error) {
	names := make([]string, 0, len(f.names))
	for n := range f.names {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeStore) Path(d manifest.Digest) (string, error) {
	path, ok := f.names[d.String()]
	if !ok {
		return "", errNotFound
	}
	return path, nil
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "implementation not found" }

func TestHealthzOK(t *testing.T) {
	registry := health.NewRegistry()
	st := &fakeStore{names: map[string]string{}}
	router := NewRouter(registry, st, Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealthzUnhealthy(t *testing.T) {
	registry := health.NewRegistry()
	registry.Register("broken", health.CheckFunc(func(ctx context.Context) error {
		return errors.New("disk full")
	}))
	st := &fakeStore{names: map[string]string{}}
	router := NewRouter(registry, st, Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestStoreList(t *testing.T) {
	registry := health.NewRegistry()
	st := &fakeStore{names: map[string]string{
		"sha256new=abc": "/store/sha256new=abc",
	}}
	router := NewRouter(registry, st, Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/store", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var names []string
	if err := json.Unmarshal(rr.Body.Bytes(), &names); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(names) != 1 || names[0] != "sha256new=abc" {
		t.Fatalf("names = %v", names)
	}
}

func TestStoreStatNotFound(t *testing.T) {
	registry := health.NewRegistry()
	st := &fakeStore{names: map[string]string{}}
	router := NewRouter(registry, st, Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/store/sha256new=missing", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStoreStatInvalidDigest(t *testing.T) {
	registry := health.NewRegistry()
	st := &fakeStore{names: map[string]string{}}
	router := NewRouter(registry, st, Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/store/not-a-digest", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
