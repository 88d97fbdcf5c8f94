// Package manifest implements the canonical, line-oriented serialization of
// a directory tree (the "manifest") and the digest string derived from it.
// The byte-exact shape of this serialization is the wire contract the rest
// of the store depends on: two implementations that disagree on a single
// byte here will disagree on every digest.
package manifest

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	godigest "github.com/opencontainers/go-digest"
)

// Format identifies one of the four supported manifest serializations. The
// "old" family (Sha1, Sha256) emits directory lines carrying an mtime and
// contributes that mtime to the digest; the "new" family (Sha1New,
// Sha256New) drops directory mtimes. This is a compatibility wart: old
// stores must still be readable, but new is always preferred for writing.
type Format int

const (
	Sha1 Format = iota
	Sha1New
	Sha256
	Sha256New
)

// Prefix is the algorithm identifier used in digest strings and as the
// directory-name prefix in the store (e.g. "sha256new=...").
func (f Format) Prefix() string {
	switch f {
	case Sha1:
		return "sha1"
	case Sha1New:
		return "sha1new"
	case Sha256:
		return "sha256"
	case Sha256New:
		return "sha256new"
	default:
		panic(fmt.Sprintf("manifest: unknown format %d", f))
	}
}

// New reports whether the format belongs to the "new" family (no mtime on
// directory lines).
func (f Format) New() bool {
	return f == Sha1New || f == Sha256New
}

// NewHash returns a fresh hash.Hash for the format's content-hashing
// algorithm (used for file/symlink lines, independent of the digest of the
// manifest as a whole).
func (f Format) NewHash() hash.Hash {
	switch f {
	case Sha1, Sha1New:
		return sha1.New()
	case Sha256, Sha256New:
		return sha256.New()
	default:
		panic(fmt.Sprintf("manifest: unknown format %d", f))
	}
}

// digestAlgorithm returns the opencontainers/go-digest Algorithm matching
// this format's content-hashing algorithm, used to render a finished
// hash.Hash as a canonical hex string via godigest.NewDigest — the same
// library and pattern the teacher's blob store uses to compute blob
// digests (digest.Canonical.Digester()).
func (f Format) digestAlgorithm() godigest.Algorithm {
	switch f {
	case Sha1, Sha1New:
		return godigest.SHA1
	case Sha256, Sha256New:
		return godigest.SHA256
	default:
		panic(fmt.Sprintf("manifest: unknown format %d", f))
	}
}

// FormatForPrefix resolves a digest-string algorithm prefix to its Format.
// ok is false for an unrecognized prefix.
func FormatForPrefix(prefix string) (f Format, ok bool) {
	switch prefix {
	case "sha1":
		return Sha1, true
	case "sha1new":
		return Sha1New, true
	case "sha256":
		return Sha256, true
	case "sha256new":
		return Sha256New, true
	default:
		return 0, false
	}
}

// preferenceOrder ranks formats from strongest to weakest, per spec.md's
// "best" algorithm rule: sha256new > sha256 > sha1new > sha1.
var preferenceOrder = []Format{Sha256New, Sha256, Sha1New, Sha1}
