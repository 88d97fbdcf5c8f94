package manifest

import (
	"hash"
	"io"

	godigest "github.com/opencontainers/go-digest"
)

// encodeContentHash renders a finished file/symlink content hash as hex,
// via godigest.NewDigest's alg:hex value type, taking only the hex half.
// Unlike the manifest digest itself, per-node hashes are always hex — the
// "new" family's base32 encoding applies only to the digest of the
// manifest as a whole (spec.md §4.1).
func encodeContentHash(f Format, h hash.Hash) string {
	return godigest.NewDigest(f.digestAlgorithm(), h).Encoded()
}

// copyHash streams r into h and returns the number of bytes copied.
func copyHash(h hash.Hash, r io.Reader) (int64, error) {
	return io.Copy(h, r)
}
