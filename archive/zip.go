package archive

import (
	"archive/zip"
	"context"
	"io"
	"os"
)

// zipExtractor handles application/zip, spec.md §4.3's required baseline
// format (PKZIP, store + deflate). No pack library replaces the zip
// container parser itself — see DESIGN.md for why stdlib archive/zip
// stands here unlike the tar-family codecs below.
type zipExtractor struct{ info Info }

func (z *zipExtractor) Extract(ctx context.Context, src io.ReaderAt, size int64, dest string) error {
	section := z.info.section(src, size)
	r, err := zip.NewReader(section, section.Size())
	if err != nil {
		return err
	}

	out := newSink(dest)
	for _, entry := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		rerooted, ok := z.info.included(entry.Name)
		if !ok {
			continue
		}

		mode := entry.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			target, err := readZipSymlink(entry)
			if err != nil {
				return err
			}
			if err := out.writeSymlink(rerooted, target); err != nil {
				return err
			}
		case entry.FileInfo().IsDir():
			if err := out.writeDir(rerooted, entry.Modified); err != nil {
				return err
			}
		default:
			rc, err := entry.Open()
			if err != nil {
				return err
			}
			err = out.writeFile(rerooted, rc, entry.Modified, mode&0o100 != 0)
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return out.flushSidecars()
}

func readZipSymlink(entry *zip.File) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	target, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(target), nil
}
