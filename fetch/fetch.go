// Package fetch implements spec.md §4.5's Fetcher: the top-level
// "given an Implementation, end up with a verified entry in the
// Directory Store" operation that a FeedProvider drives. It sits above
// the Archive Extractor, Download Scheduler, and Directory Store,
// owning none of their logic — only the plan-download-extract-verify
// sequencing and the in-flight de-duplication spec.md §4.5 requires.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	events "github.com/docker/go-events"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"

	"github.com/zeroinstall-go/zerostore/archive"
	"github.com/zeroinstall-go/zerostore/internal/dcontext"
	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/model"
	"github.com/zeroinstall-go/zerostore/scheduler"
	"github.com/zeroinstall-go/zerostore/store"
	"github.com/zeroinstall-go/zerostore/zerrors"
)

// Store is the subset of *store.Store the Fetcher depends on, named so
// tests can substitute a fake without standing up a real content-addressed
// cache on disk.
type Store interface {
	Contains(d manifest.Digest) bool
	Path(d manifest.Digest) (string, error)
	AddMultipleArchives(ctx context.Context, sources []store.ArchiveSource, expected manifest.Digest) (string, error)
}

// Fetcher retrieves spec.md §3's Implementations into a Store, one
// digest's fetch in flight at a time, using a shared Scheduler for the
// underlying transfers.
type Fetcher struct {
	store   Store
	sched   *scheduler.Scheduler
	probe   *retryablehttp.Client
	group   singleflight.Group
	events  events.Sink
	metrics *fetchMetrics
	workDir string
}

// Option configures a Fetcher at construction.
type Option func(*Fetcher)

// WithEventSink routes fetch lifecycle events to sink instead of the
// default in-process broadcaster.
func WithEventSink(sink events.Sink) Option {
	return func(f *Fetcher) { f.events = sink }
}

// WithWorkDir overrides where downloaded archives are staged before
// extraction. Defaults to a fresh directory under os.TempDir().
func WithWorkDir(dir string) Option {
	return func(f *Fetcher) { f.workDir = dir }
}

// New builds a Fetcher that downloads through sched and installs into st.
func New(st Store, sched *scheduler.Scheduler, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		store:   st,
		sched:   sched,
		probe:   retryablehttp.NewClient(),
		events:  events.NewBroadcaster(),
		metrics: newFetchMetrics(),
	}
	f.probe.Logger = nil
	for _, opt := range opts {
		opt(f)
	}
	if f.workDir == "" {
		dir, err := os.MkdirTemp("", "zistore-fetch-")
		if err != nil {
			return nil, &zerrors.IOError{Op: "mkdtemp", Path: os.TempDir(), Err: err}
		}
		f.workDir = dir
	}
	return f, nil
}

func (f *Fetcher) publish(evt Event) {
	if err := f.events.Write(evt); err != nil {
		dcontext.GetLogger(context.Background()).WithError(err).Debug("zerostore: dropping fetch event, sink write failed")
	}
}

// Fetch retrieves every Implementation in req, returning the installed
// store path for each digest it succeeded on. Implementations already
// present in the store are skipped without touching the network.
// Concurrent Fetch calls (or concurrent FeedProvider goroutines) sharing
// the same digest join the single in-flight attempt rather than
// downloading twice, per spec.md §4.5.
func (f *Fetcher) Fetch(ctx context.Context, req model.FetchRequest) (map[string]string, error) {
	results := make(map[string]string, len(req.Implementations))
	var firstErr error

	for _, impl := range req.Implementations {
		path, err := f.fetchOne(ctx, impl)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results[impl.Digest.String()] = path
	}
	return results, firstErr
}

func (f *Fetcher) fetchOne(ctx context.Context, impl model.Implementation) (string, error) {
	if impl.Digest.Empty() {
		return "", zerrors.NoKnownDigest
	}
	digestStr := impl.Digest.String()

	if f.store.Contains(impl.Digest) {
		path, err := f.store.Path(impl.Digest)
		if err == nil {
			f.metrics.skipped.Increment()
			f.publish(Event{Kind: EventSkip, Digest: digestStr, At: time.Now()})
			return path, nil
		}
	}

	v, err, shared := f.group.Do(digestStr, func() (any, error) {
		return f.doFetch(ctx, impl)
	})
	if shared {
		f.metrics.deduped.Increment()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// doFetch tries each of impl's retrieval methods — every standalone
// Archive treated as a one-step recipe, then every Recipe — in order,
// returning the first that downloads, extracts, and verifies against
// impl.Digest. spec.md §4.5 step 2 prefers a single Archive over a
// Recipe; a later method (including any Recipe) is only attempted once
// an earlier one fails.
func (f *Fetcher) doFetch(ctx context.Context, impl model.Implementation) (string, error) {
	digestStr := impl.Digest.String()
	f.publish(Event{Kind: EventPlan, Digest: digestStr, At: time.Now()})
	start := time.Now()

	methods := retrievalMethods(impl)
	if len(methods) == 0 {
		return "", fmt.Errorf("zerostore: implementation %s has no retrieval method", digestStr)
	}

	var lastErr error
	for _, archives := range methods {
		path, err := f.tryMethod(ctx, digestStr, archives, impl.Digest)
		if err == nil {
			f.metrics.fetches.WithValues("ok").UpdateSince(start)
			f.publish(Event{Kind: EventInstalled, Digest: digestStr, At: time.Now()})
			return path, nil
		}
		if _, ok := err.(*zerrors.AlreadyInStore); ok {
			f.metrics.fetches.WithValues("ok").UpdateSince(start)
			f.publish(Event{Kind: EventInstalled, Digest: digestStr, At: time.Now()})
			return path, nil
		}
		lastErr = err
	}

	f.metrics.failures.Increment()
	f.metrics.fetches.WithValues("failed").UpdateSince(start)
	f.publish(Event{Kind: EventFailed, Digest: digestStr, At: time.Now(), Err: lastErr})
	return "", lastErr
}

// retrievalMethods orders impl's retrieval methods per spec.md §4.5 step
// 2: "prefer a single Archive if present and small; otherwise the first
// Recipe" — every standalone Archive is tried before any Recipe.
func retrievalMethods(impl model.Implementation) [][]model.Archive {
	var methods [][]model.Archive
	for _, a := range impl.Archive {
		methods = append(methods, []model.Archive{a})
	}
	for _, r := range impl.Recipe {
		if len(r.Archives) > 0 {
			methods = append(methods, r.Archives)
		}
	}
	return methods
}

// tryMethod downloads every archive in archives (in order, so a
// multi-step recipe's later archives are available once extraction
// begins), then installs the resulting tree against expected.
func (f *Fetcher) tryMethod(ctx context.Context, digestStr string, archives []model.Archive, expected manifest.Digest) (string, error) {
	jobID := fmt.Sprintf("fetch-%s-%d", digestStr, time.Now().UnixNano())
	plans := make([]archivePlan, len(archives))
	job := &scheduler.Job{ID: jobID, Priority: 0}

	for i, a := range archives {
		plan, err := f.planArchive(ctx, a, i)
		if err != nil {
			return "", err
		}
		plans[i] = plan
		job.Files = append(job.Files, plan.file)
	}
	defer func() {
		for _, p := range plans {
			os.Remove(p.dest)
		}
	}()

	f.publish(Event{Kind: EventDownloading, Digest: digestStr, At: time.Now()})
	if err := f.sched.AddJob(job); err != nil {
		return "", err
	}
	if err := f.sched.Run(ctx); err != nil {
		return "", err
	}

	f.publish(Event{Kind: EventExtracting, Digest: digestStr, At: time.Now()})
	sources := make([]store.ArchiveSource, len(plans))
	for i, p := range plans {
		fh, err := os.Open(p.dest)
		if err != nil {
			return "", &zerrors.IOError{Op: "open", Path: p.dest, Err: err}
		}
		defer fh.Close()
		info, statErr := fh.Stat()
		if statErr != nil {
			return "", &zerrors.IOError{Op: "stat", Path: p.dest, Err: statErr}
		}
		sources[i] = store.ArchiveSource{Info: p.resolvedInfo(), Data: fh, Size: info.Size()}
	}

	f.publish(Event{Kind: EventVerifying, Digest: digestStr, At: time.Now()})
	return f.storeAdd(ctx, sources, expected)
}

func (f *Fetcher) storeAdd(ctx context.Context, sources []store.ArchiveSource, expected manifest.Digest) (string, error) {
	path, err := f.store.AddMultipleArchives(ctx, sources, expected)
	return path, err
}

// archivePlan is one archive's download plan: the scheduler File that
// retrieves it and the archive.Info to extract it with, adjusted for
// whether a Range probe found the prefix before start_offset skippable
// at the HTTP layer.
type archivePlan struct {
	dest string
	info archive.Info
	file *scheduler.File
}

// planArchive decides how to retrieve one Archive: a plain download, or,
// when the archive declares a start_offset and the server advertises
// Range support, a Range GET for bytes=start_offset- that skips the
// unneeded prefix in transit rather than downloading and discarding it —
// spec.md §4.5's Size/Range probing.
func (f *Fetcher) planArchive(ctx context.Context, a model.Archive, index int) (archivePlan, error) {
	dest := filepath.Join(f.workDir, fmt.Sprintf("%d-%s", index, sanitizeFilename(a.URL)))

	info := archive.Info{MIMEType: a.MIMEType, StartOffset: a.StartOffset, SubDir: a.SubDir}
	file := &scheduler.File{URL: a.URL, ExpectedSize: a.Size, Dest: dest, SupportsResume: true}

	if a.StartOffset > 0 && f.rangeSupported(ctx, a.URL) {
		file.RangeStart = a.StartOffset
		if a.Size > 0 {
			// Stash the whole-resource size so downloadFile can restore
			// ExpectedSize if the server ends up ignoring the Range
			// request on the actual GET despite advertising support on
			// the HEAD probe.
			file.FullSize = a.Size
			file.ExpectedSize = a.Size - a.StartOffset
		}
	}

	return archivePlan{dest: dest, info: info, file: file}, nil
}

// resolvedInfo returns p's archive.Info, adjusted to StartOffset 0 when
// the download actually served only the post-offset suffix (the
// scheduler reports this via File.RangeHonored once the transfer
// finishes) — the extractor must not re-skip bytes the network layer
// already skipped.
func (p archivePlan) resolvedInfo() archive.Info {
	if p.file.RangeStart > 0 && p.file.RangeHonored() {
		info := p.info
		info.StartOffset = 0
		return info
	}
	return p.info
}

// rangeSupported issues a HEAD request and reports whether the server
// advertises byte-range support. A probe failure is treated as "no",
// falling back to a plain whole-file download plus in-extractor offset
// skip, never as a hard error — spec.md §4.5 never requires Range
// support, only exploits it when present.
func (f *Fetcher) rangeSupported(ctx context.Context, url string) bool {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := f.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.Header.Get("Accept-Ranges") == "bytes"
}

func sanitizeFilename(url string) string {
	name := filepath.Base(url)
	if name == "" || name == "." || name == "/" {
		return "archive"
	}
	return name
}
