package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/zerrors"
)

// Verify regenerates the manifest of the installed implementation named
// by digestString (a store sub-directory name, e.g. from ListAll) and
// confirms it still matches that name. A mismatch here means on-disk
// corruption or interference outside this package — not something a
// caller can recover from short of re-fetching the implementation.
func (s *Store) Verify(digestString string) error {
	start := time.Now()
	s.publish(Event{Kind: EventVerifying, Digest: digestString, At: start})

	d, ok := manifest.ParseDigestString(digestString)
	if !ok {
		return fmt.Errorf("zerostore: %q is not a valid digest string", digestString)
	}
	f, _ := d.Best()

	path := filepath.Join(s.root, digestString)
	m, err := manifest.Generate(path, f)
	if err != nil {
		return err
	}
	s.metrics.observeVerify("verify", start)

	actual := m.Digest().StringFor(f)
	if actual != digestString {
		s.metrics.mismatches.Increment()
		s.publish(Event{Kind: EventMismatch, Digest: digestString, At: time.Now()})
		return &zerrors.DigestMismatch{Expected: digestString, Actual: actual, Manifest: m.Bytes()}
	}

	s.publish(Event{Kind: EventVerified, Digest: digestString, At: time.Now()})
	return nil
}

// VerifyAll verifies every installed implementation, returning one error
// per digest that failed verification (nil entries are omitted). This
// never stops at the first failure — an operator running a gc/fsck pass
// wants to see every bad implementation in one run, not one per
// invocation.
func (s *Store) VerifyAll() map[string]error {
	names, err := s.ListAll()
	if err != nil {
		return map[string]error{"*": err}
	}

	failures := make(map[string]error)
	for _, name := range names {
		if err := s.Verify(name); err != nil {
			failures[name] = err
		}
	}
	return failures
}
