//go:build !windows

package store

import (
	"io/fs"
	"os"
	"path/filepath"
)

// protect strips write permission from every entry under root once an
// implementation is committed, per spec.md §4.2: installed implementations
// are immutable. Failures are returned to the caller to log, not fatal to
// the install itself — a store on a filesystem that ignores chmod (some
// network mounts) still holds a verified, usable implementation.
func protect(root string) error {
	return filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		mode := info.Mode().Perm() &^ 0o222
		return os.Chmod(path, mode)
	})
}
