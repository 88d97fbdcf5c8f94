package manifest

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// lowercaseBase32 is the project's encoding for "new"-family digests:
// standard RFC 4648 base32, lowercased, unpadded.
var lowercaseBase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Digest maps manifest-engine Format to its encoded hash string, following
// spec.md §3's ManifestDigest: at least one algorithm populated, with a
// well-defined "best" (strongest available) algorithm.
type Digest map[Format]string

// NewDigest builds a Digest holding a single algorithm's encoded hash.
func NewDigest(f Format, raw []byte) Digest {
	return Digest{f: encode(f, raw)}
}

func encode(f Format, raw []byte) string {
	if f.New() {
		return lowercaseBase32.EncodeToString(raw)
	}
	return hex.EncodeToString(raw)
}

// Best returns the strongest populated format, per the preference order
// sha256new > sha256 > sha1new > sha1, and false if the digest is empty.
func (d Digest) Best() (Format, bool) {
	for _, f := range preferenceOrder {
		if _, ok := d[f]; ok {
			return f, true
		}
	}
	return 0, false
}

// String renders the best-available digest as "<prefix>=<encoded>", the
// on-disk store directory name.
func (d Digest) String() string {
	f, ok := d.Best()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s=%s", f.Prefix(), d[f])
}

// StringFor renders the digest string for one specific format, or "" if
// that algorithm is not populated.
func (d Digest) StringFor(f Format) string {
	enc, ok := d[f]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s=%s", f.Prefix(), enc)
}

// Empty reports whether no algorithm is populated.
func (d Digest) Empty() bool {
	return len(d) == 0
}

// ParseDigestString parses a single "<prefix>=<encoded>" string into a
// one-entry Digest. ok is false for an unrecognized prefix or a string with
// no "=" separator.
func ParseDigestString(s string) (Digest, bool) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return nil, false
	}
	prefix, encoded := s[:i], s[i+1:]
	f, ok := FormatForPrefix(prefix)
	if !ok {
		return nil, false
	}
	return Digest{f: encoded}, true
}

// Names returns the digest strings for every populated algorithm, sorted
// byte-wise — used when a Digest must be checked against several candidate
// store directory names.
func (d Digest) Names() []string {
	names := make([]string, 0, len(d))
	for f := range d {
		names = append(names, d.StringFor(f))
	}
	sort.Strings(names)
	return names
}
