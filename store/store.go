// Package store implements the content-addressed implementation store:
// spec.md §4.2's Directory Store. Every sub-directory of the store root is
// named after a manifest digest string and, once installed, is immutable
// and write-protected. All mutation goes through the staging discipline in
// install.go.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	events "github.com/docker/go-events"
	"github.com/juju/fslock"
	"github.com/sirupsen/logrus"

	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/zerrors"
)

// Store is a local, content-addressed cache of installed implementations.
// It corresponds to spec.md §3's DirectoryStore: one per configured cache
// location, safe for concurrent reads, serializing installs on the
// filesystem rename that commits them.
type Store struct {
	root     string
	readOnly bool

	lockPath string
	events   events.Sink
	metrics  *storeMetrics
}

// Option configures a Store at construction.
type Option func(*Store)

// ReadOnly marks the store as never mutated by this process, skipping the
// mtime-accuracy probe (spec.md §4.2's "Skip probe if the store is
// read-only").
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// WithEventSink routes install/verify/remove lifecycle events to sink,
// instead of the default in-process broadcaster.
func WithEventSink(sink events.Sink) Option {
	return func(s *Store) { s.events = sink }
}

// New opens (or creates) a Store rooted at root. At construction it probes
// the backing filesystem for 1-second mtime accuracy per spec.md §4.2;
// failing that probe returns zerrors.InsufficientTimeAccuracy, since every
// other invariant in this package depends on mtimes surviving a round trip
// to within a second.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:     root,
		lockPath: filepath.Join(root, ".lock"),
		events:   events.NewBroadcaster(),
		metrics:  newStoreMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &zerrors.IOError{Op: "mkdir", Path: root, Err: err}
	}

	if !s.readOnly {
		if err := probeMtimeAccuracy(root); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Root returns the store's backing directory.
func (s *Store) Root() string { return s.root }

// Events returns the sink every install/verify/remove transition is
// published on, so a caller (CLI, debug API) can subscribe without this
// package depending on any particular UI — grounded on the teacher's
// notifications package, which decouples registry event producers from
// consumers the same way.
func (s *Store) Events() events.Sink { return s.events }

func (s *Store) publish(evt Event) {
	if err := s.events.Write(evt); err != nil {
		logrus.WithError(err).Debug("zerostore: dropping store event, sink write failed")
	}
}

// Contains reports whether any algorithm in digest names an existing
// store sub-directory.
func (s *Store) Contains(d manifest.Digest) bool {
	for _, name := range d.Names() {
		if info, err := os.Stat(filepath.Join(s.root, name)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// Path returns the absolute path of the first store sub-directory whose
// name matches an algorithm in digest, or zerrors.ImplementationNotFound.
func (s *Store) Path(d manifest.Digest) (string, error) {
	for _, name := range d.Names() {
		p := filepath.Join(s.root, name)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}
	}
	return "", &zerrors.ImplementationNotFound{Digest: d.String()}
}

// ListAll enumerates installed digest strings: sub-directory names
// containing "=" that are not dot-prefixed (staging directories and
// bookkeeping files are excluded), sorted byte-wise.
func (s *Store) ListAll() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &zerrors.IOError{Op: "readdir", Path: s.root, Err: err}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.Contains(name, "=") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// stagingDir creates a fresh, randomly named temporary sub-directory of
// the store root, owned exclusively by the in-flight operation that
// created it until it is either installed (renamed away) or deleted on
// failure.
func (s *Store) stagingDir() (string, error) {
	dir, err := os.MkdirTemp(s.root, "staging-")
	if err != nil {
		return "", &zerrors.IOError{Op: "mkdtemp", Path: s.root, Err: err}
	}
	return dir, nil
}

// withLock runs fn while holding the store's cross-process advisory lock
// (pack enrichment: canonical-chisel uses the identical juju/fslock to
// guard concurrent mutation of its own on-disk state). Held only around
// the metadata mutation itself, never across I/O-heavy extraction or
// hashing, matching spec.md §5's "no component holds a lock across
// network or disk I/O".
func (s *Store) withLock(fn func() error) error {
	lock := fslock.New(s.lockPath)
	if err := lock.LockWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("zerostore: acquiring store lock: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

func probeMtimeAccuracy(root string) error {
	probe := filepath.Join(root, ".mtime-probe")
	defer os.Remove(probe)

	if err := os.WriteFile(probe, []byte("x"), 0o644); err != nil {
		return &zerrors.IOError{Op: "write", Path: probe, Err: err}
	}

	want := time.Now().Add(-90 * time.Second).Truncate(time.Second)
	if err := os.Chtimes(probe, want, want); err != nil {
		return &zerrors.IOError{Op: "chtimes", Path: probe, Err: err}
	}

	info, err := os.Stat(probe)
	if err != nil {
		return &zerrors.IOError{Op: "stat", Path: probe, Err: err}
	}

	if info.ModTime().Truncate(time.Second).Sub(want).Abs() > time.Second {
		return zerrors.InsufficientTimeAccuracy
	}
	return nil
}
