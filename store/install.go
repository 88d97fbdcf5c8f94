package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zeroinstall-go/zerostore/archive"
	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/zerrors"
)

// ArchiveSource pairs one archive's metadata with already-opened,
// seekable access to its bytes. AddMultipleArchives extracts a list of
// these into a single staging directory, in order, implementing spec.md
// §3's Recipe overlay semantics (a later archive's files win on conflict,
// since extraction simply overwrites).
type ArchiveSource struct {
	Info archive.Info
	Data io.ReaderAt
	Size int64
}

// AddDirectory verifies and installs a directory already assembled on
// local disk (src) against expected, the digest the caller requires the
// installed tree to match. It is the simplest of the three install entry
// points: no extraction, just the copy-stage-verify-commit protocol every
// Add* method shares via install.
func (s *Store) AddDirectory(ctx context.Context, src string, expected manifest.Digest) (string, error) {
	return s.install(ctx, expected, "directory", func(staging string) error {
		return copyTree(src, staging)
	})
}

// AddArchive verifies and installs the tree produced by extracting one
// archive, per spec.md §4.2's add_archive operation.
func (s *Store) AddArchive(ctx context.Context, info archive.Info, data io.ReaderAt, size int64, expected manifest.Digest) (string, error) {
	return s.AddMultipleArchives(ctx, []ArchiveSource{{Info: info, Data: data, Size: size}}, expected)
}

// AddMultipleArchives verifies and installs the tree produced by
// extracting sources in order into one staging directory — spec.md
// §4.2's add_multiple_archives, used for a Recipe with more than one
// step.
func (s *Store) AddMultipleArchives(ctx context.Context, sources []ArchiveSource, expected manifest.Digest) (string, error) {
	return s.install(ctx, expected, "archive", func(staging string) error {
		for _, src := range sources {
			ex, err := archive.Create(src.Info)
			if err != nil {
				return err
			}
			if err := ex.Extract(ctx, src.Data, src.Size, staging); err != nil {
				return err
			}
		}
		return nil
	})
}

// install is the verify-and-install protocol every Add* method shares:
// stage into a fresh temporary directory, let fill populate it, generate
// the canonical manifest, compare its digest against expected, and — only
// on a match — atomically rename the staging directory into its final,
// digest-named, write-protected place. Grounded on the teacher's
// blobWriter.doCommit, which runs the identical
// write-then-validate-then-move-then-link sequence for a blob upload.
func (s *Store) install(ctx context.Context, expected manifest.Digest, method string, fill func(staging string) error) (string, error) {
	if expected.Empty() {
		return "", zerrors.NoKnownDigest
	}
	f, ok := expected.Best()
	if !ok {
		return "", zerrors.NoKnownDigest
	}

	start := time.Now()
	s.publish(Event{Kind: EventInstalling, Digest: expected.String(), At: start})

	staging, err := s.stagingDir()
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	if err := fill(staging); err != nil {
		return "", err
	}

	s.publish(Event{Kind: EventVerifying, Digest: expected.String(), At: time.Now()})
	m, err := manifest.Generate(staging, f)
	if err != nil {
		return "", err
	}
	s.metrics.observeVerify(method, start)

	actualStr := m.Digest().StringFor(f)
	expectedStr := expected.StringFor(f)
	if actualStr != expectedStr {
		s.metrics.mismatches.Increment()
		s.publish(Event{Kind: EventMismatch, Digest: expected.String(), At: time.Now()})
		return "", &zerrors.DigestMismatch{Expected: expectedStr, Actual: actualStr, Manifest: m.Bytes()}
	}

	if err := manifest.Save(filepath.Join(staging, ".manifest"), m); err != nil {
		return "", err
	}

	final := filepath.Join(s.root, expectedStr)

	var resultPath string
	var already bool
	err = s.withLock(func() error {
		if info, statErr := os.Stat(final); statErr == nil && info.IsDir() {
			already = true
			return nil
		}
		if err := os.Rename(staging, final); err != nil {
			return &zerrors.IOError{Op: "rename", Path: final, Err: err}
		}
		committed = true
		resultPath = final
		return nil
	})
	if err != nil {
		return "", err
	}

	// final is already committed under its digest name and visible to
	// every other caller by the time the lock above is released; no other
	// installer ever targets the same digest directory, so write-protecting
	// it races with nothing and does not need the store lock held.
	if committed {
		if err := protect(final); err != nil {
			logrus.WithError(err).WithField("digest", expectedStr).
				Warn("zerostore: could not write-protect installed implementation")
		}
	}

	if already {
		s.publish(Event{Kind: EventInstalled, Digest: expected.String(), At: time.Now()})
		s.metrics.observeInstall(method, start)
		return final, &zerrors.AlreadyInStore{Digest: expectedStr}
	}

	s.publish(Event{Kind: EventInstalled, Digest: expected.String(), At: time.Now()})
	s.metrics.observeInstall(method, start)
	return resultPath, nil
}
