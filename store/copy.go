package store

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeroinstall-go/zerostore/zerrors"
)

// copyTree recursively copies src into dest, preserving mtimes, the
// executable bit, and symlinks — the same properties manifest.Generate
// later reads back. Used by AddDirectory, whose caller has already
// assembled a tree on local disk (e.g. a 0store-style "add" from an
// already-unpacked implementation) rather than an archive this package
// must unpack itself.
func copyTree(src, dest string) error {
	// Directory mtimes are applied after the walk, deepest first: creating
	// entries inside a directory would otherwise overwrite its copied mtime.
	type dirTime struct {
		path  string
		mtime time.Time
	}
	var dirs []dirTime
	err := filepath.Walk(src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if rel == "." {
			return nil
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return &zerrors.IOError{Op: "readlink", Path: path, Err: err}
			}
			return os.Symlink(link, target)

		case info.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &zerrors.IOError{Op: "mkdir", Path: target, Err: err}
			}
			dirs = append(dirs, dirTime{target, info.ModTime()})
			return nil

		default:
			return copyFile(path, target, info)
		}
	})
	if err != nil {
		return err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Chtimes(dirs[i].path, dirs[i].mtime, dirs[i].mtime); err != nil {
			return &zerrors.IOError{Op: "chtimes", Path: dirs[i].path, Err: err}
		}
	}
	return nil
}

func copyFile(src, dest string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return &zerrors.IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &zerrors.IOError{Op: "mkdir", Path: filepath.Dir(dest), Err: err}
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return &zerrors.IOError{Op: "create", Path: dest, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &zerrors.IOError{Op: "write", Path: dest, Err: err}
	}
	if err := out.Close(); err != nil {
		return &zerrors.IOError{Op: "close", Path: dest, Err: err}
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}
