package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/zerrors"
)

// Remove deletes the installed implementation matching digest. It
// disables write protection first (installed trees are chmod'd read-only
// by protect at install time), renames the directory out of the way
// under the lock so a concurrent Path()/Contains() never observes a
// half-deleted tree, and then removes the renamed copy at leisure.
func (s *Store) Remove(d manifest.Digest) error {
	path, err := s.Path(d)
	if err != nil {
		return err
	}
	digestStr := filepath.Base(path)

	s.publish(Event{Kind: EventRemoving, Digest: digestStr, At: time.Now()})

	var trash string
	err = s.withLock(func() error {
		if err := unprotect(path); err != nil {
			return err
		}
		trash = filepath.Join(s.root, fmt.Sprintf(".trash-%s", filepath.Base(path)))
		if err := os.Rename(path, trash); err != nil {
			return &zerrors.IOError{Op: "rename", Path: path, Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(trash); err != nil {
		return &zerrors.IOError{Op: "removeall", Path: trash, Err: err}
	}

	s.metrics.removals.Increment()
	s.publish(Event{Kind: EventRemoved, Digest: digestStr, At: time.Now()})
	return nil
}

// unprotect restores write permission so Remove's rename/RemoveAll can
// succeed against a tree protect() previously made read-only.
func unprotect(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		mode := info.Mode().Perm() | 0o200
		return os.Chmod(p, mode)
	})
}
