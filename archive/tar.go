package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// decodeFunc wraps a compressed byte stream with its decompressor. Tar
// archives are inherently streamable, so - unlike zip - these never need
// random access to the underlying reader.
type decodeFunc func(io.Reader) (io.Reader, error)

func decodeNone(r io.Reader) (io.Reader, error) { return r, nil }

// decodeGzip uses klauspost/compress/gzip rather than stdlib compress/gzip:
// a drop-in, faster gzip reader, the same substitution canonical-chisel
// makes for its own gzip-compressed debian payloads.
func decodeGzip(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }

// decodeBzip2 has no pack-provided replacement; stdlib compress/bzip2 is
// read-only and that's all extraction ever needs (see DESIGN.md).
func decodeBzip2(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }

// decodeXz mirrors canonical-chisel's internal/deb/extract.go, which
// decodes "data.tar.xz" debian payloads with this exact library.
func decodeXz(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }

// tarExtractor handles every tar-based MIME type this package supports
// (plain, gzip, bzip2, xz), differing only in which decompressor sits in
// front of archive/tar.
type tarExtractor struct {
	info   Info
	decode decodeFunc
}

func (t *tarExtractor) Extract(ctx context.Context, src io.ReaderAt, size int64, dest string) error {
	section := t.info.section(src, size)
	decoded, err := t.decode(section)
	if err != nil {
		return err
	}

	tr := tar.NewReader(decoded)
	out := newSink(dest)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		rerooted, ok := t.info.included(hdr.Name)
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := out.writeDir(rerooted, hdr.ModTime); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			if err := out.writeSymlink(rerooted, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeReg, tar.TypeRegA:
			executable := hdr.Mode&0o100 != 0
			if err := out.writeFile(rerooted, tr, hdr.ModTime, executable); err != nil {
				return err
			}
		default:
			// Device nodes, FIFOs, etc. are not part of spec.md's model
			// and are silently skipped, matching the extractor's
			// "only files, executables, symlinks and directories"
			// manifest vocabulary.
		}
	}
	return out.flushSidecars()
}
