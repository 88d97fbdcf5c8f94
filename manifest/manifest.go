package manifest

import "bytes"

// Manifest is an ordered sequence of Nodes under a single Format. Order is
// intrinsic to the digest: re-sorting a Manifest changes its identity.
type Manifest struct {
	Format Format
	Nodes  []Node
}

// Bytes renders the manifest to its canonical LF-terminated byte form. This
// is what gets hashed to produce the manifest's Digest, and what is
// persisted verbatim as ".manifest" inside an installed implementation.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	for _, n := range m.Nodes {
		buf.WriteString(n.Line(m.Format))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Digest hashes Bytes() under the manifest's own format and returns the
// one-algorithm Digest for it.
func (m *Manifest) Digest() Digest {
	h := m.Format.NewHash()
	h.Write(m.Bytes())
	return NewDigest(m.Format, h.Sum(nil))
}
