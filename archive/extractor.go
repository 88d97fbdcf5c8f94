// Package archive implements spec.md §4.3's Archive Extractor: a
// format-dispatching byte-stream extractor that preserves modification
// times, records the executable-bit/symlink sidecars, and honours a start
// offset and optional sub-directory root.
//
// Grounded on canonical-chisel's internal/deb/extract.go, which dispatches
// ar/gzip/xz/zstd payloads by sniffing the entry name the same way this
// package dispatches archives by declared MIME type.
package archive

import (
	"context"
	"fmt"
	"io"
)

// Info describes one archive to extract: spec.md §3's Archive value,
// minus the URL (the Fetcher/Scheduler own retrieval; this package only
// ever sees bytes already on local disk, addressed via an io.ReaderAt so
// a start offset never requires downloading or re-reading a prefix).
type Info struct {
	MIMEType    string
	StartOffset int64
	SubDir      string
}

// Extractor streams one archive into a destination directory.
type Extractor interface {
	// Extract reads exactly the archive bytes - skipping StartOffset
	// non-archive bytes first - from src (total length size) and writes
	// its entries under dest. The caller owns src and is responsible for
	// closing it; Extract itself never leaves file descriptors open past
	// return, per spec.md §4.3's "must close its input stream before
	// returning" (expressed here as "must not retain src after return",
	// since src is owned by the caller, typically an *os.File it also
	// closes).
	Extract(ctx context.Context, src io.ReaderAt, size int64, dest string) error
}

// factories maps a MIME type to the constructor for its Extractor.
var factories = map[string]func(Info) Extractor{
	"application/zip":                         func(i Info) Extractor { return &zipExtractor{i} },
	"application/x-compressed-tar":             func(i Info) Extractor { return &tarExtractor{i, decodeGzip} },
	"application/x-tar+gzip":                   func(i Info) Extractor { return &tarExtractor{i, decodeGzip} },
	"application/x-bzip-compressed-tar":        func(i Info) Extractor { return &tarExtractor{i, decodeBzip2} },
	"application/x-tar+bzip2":                  func(i Info) Extractor { return &tarExtractor{i, decodeBzip2} },
	"application/x-xz-compressed-tar":          func(i Info) Extractor { return &tarExtractor{i, decodeXz} },
	"application/x-tar+xz":                     func(i Info) Extractor { return &tarExtractor{i, decodeXz} },
	"application/x-tar":                        func(i Info) Extractor { return &tarExtractor{i, decodeNone} },
}

// Create builds the Extractor registered for info.MIMEType.
func Create(info Info) (Extractor, error) {
	factory, ok := factories[info.MIMEType]
	if !ok {
		return nil, fmt.Errorf("archive: unsupported MIME type %q", info.MIMEType)
	}
	return factory(info), nil
}

// section returns the portion of src beyond StartOffset, so every
// extractor implementation can ignore start-offset handling entirely.
func (i Info) section(src io.ReaderAt, size int64) *io.SectionReader {
	return io.NewSectionReader(src, i.StartOffset, size-i.StartOffset)
}

// included reports whether archivePath should be extracted given SubDir,
// and returns the path rerooted at the destination (SubDir prefix
// stripped) when it should.
func (i Info) included(archivePath string) (rerooted string, ok bool) {
	if i.SubDir == "" {
		return archivePath, true
	}
	prefix := i.SubDir
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	if archivePath == i.SubDir {
		return "", false // the sub_dir marker entry itself, not a descendant
	}
	if len(archivePath) > len(prefix) && archivePath[:len(prefix)] == prefix {
		return archivePath[len(prefix):], true
	}
	return "", false
}
