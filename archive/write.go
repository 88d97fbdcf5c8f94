package archive

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/zerrors"
)

// sink accumulates the extractor's output: a destination root plus the
// sidecar path lists an extractor must flush once all entries are
// written. Grounded on canonical-chisel's internal/fsutil.Create, which
// returns a per-entry fsutil.Entry the caller aggregates the same way.
type sink struct {
	dest     string
	xbits    []string
	symlinks []string
}

func newSink(dest string) *sink { return &sink{dest: dest} }

func (s *sink) joinClean(archivePath string) (string, error) {
	// Cleaning the path rooted at "/" collapses "../" components and
	// clamps any that would climb above the root, so the result always
	// stays inside dest (an archive-supplied ".." is never legitimate).
	// The error result is always nil.
	cleaned := path.Clean("/" + archivePath)[1:]
	if cleaned == "" || cleaned == "." {
		return "", nil
	}
	return filepath.Join(s.dest, filepath.FromSlash(cleaned)), nil
}

func (s *sink) writeDir(archivePath string, mtime time.Time) error {
	full, err := s.joinClean(archivePath)
	if err != nil || full == "" {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return &zerrors.IOError{Op: "mkdir", Path: full, Err: err}
	}
	return os.Chtimes(full, mtime, mtime)
}

func (s *sink) writeFile(archivePath string, r io.Reader, mtime time.Time, executable bool) error {
	full, err := s.joinClean(archivePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &zerrors.IOError{Op: "mkdir", Path: filepath.Dir(full), Err: err}
	}

	perm := os.FileMode(0o644)
	if executable && unixPerms() {
		perm = 0o755
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return &zerrors.IOError{Op: "create", Path: full, Err: err}
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return &zerrors.IOError{Op: "write", Path: full, Err: err}
	}
	if err := f.Close(); err != nil {
		return &zerrors.IOError{Op: "close", Path: full, Err: err}
	}
	if err := os.Chtimes(full, mtime, mtime); err != nil {
		return &zerrors.IOError{Op: "chtimes", Path: full, Err: err}
	}

	if executable {
		if unixPerms() {
			if err := os.Chmod(full, perm); err != nil {
				return &zerrors.IOError{Op: "chmod", Path: full, Err: err}
			}
		} else {
			s.xbits = append(s.xbits, "/"+path.Clean(archivePath))
		}
	}
	return nil
}

// writeSymlink creates a real symlink on platforms that have them; on
// platforms that record symlink-ness via the .symlink sidecar instead, it
// writes the literal target string as the file's content, matching
// manifest.symlinkNode's placeholder-reading convention.
func (s *sink) writeSymlink(archivePath, target string) error {
	full, err := s.joinClean(archivePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &zerrors.IOError{Op: "mkdir", Path: filepath.Dir(full), Err: err}
	}

	if unixPerms() {
		os.Remove(full)
		if err := os.Symlink(target, full); err != nil {
			return &zerrors.IOError{Op: "symlink", Path: full, Err: err}
		}
		return nil
	}

	if err := os.WriteFile(full, []byte(target), 0o644); err != nil {
		return &zerrors.IOError{Op: "write", Path: full, Err: err}
	}
	s.symlinks = append(s.symlinks, "/"+path.Clean(archivePath))
	return nil
}

// flushSidecars persists the .xbit/.symlink sidecars recorded during
// extraction. A no-op when nothing needed recording, which is the common
// case on Unix.
func (s *sink) flushSidecars() error {
	if err := appendSidecar(filepath.Join(s.dest, ".xbit"), s.xbits); err != nil {
		return err
	}
	return appendSidecar(filepath.Join(s.dest, ".symlink"), s.symlinks)
}

func appendSidecar(path string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return &zerrors.IOError{Op: "read", Path: path, Err: err}
	}
	all := append(splitNonEmpty(string(existing)), paths...)
	return manifest.WriteSidecar(path, all)
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func unixPerms() bool { return runtime.GOOS != "windows" }
