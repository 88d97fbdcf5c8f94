//go:build windows

package store

import (
	"io/fs"
	"os"
	"path/filepath"
)

// protect sets the read-only attribute on every entry under root. Windows
// has no executable bit and no advisory write-lock equivalent to Unix mode
// bits, so this is the closest available approximation of spec.md §4.2's
// "installed implementations are immutable".
func protect(root string) error {
	return filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chmod(path, 0o444)
	})
}
