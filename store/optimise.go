package store

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"

	"github.com/zeroinstall-go/zerostore/zerrors"
)

// Optimise hard-links byte-identical regular files that also share their
// mtime and permission bits together across every installed
// implementation, reclaiming disk space the same tree content
// appearing in multiple implementations would otherwise duplicate.
// spec.md permits this to be a no-op; this store does the work since the
// win (identical dependency trees ship inside unrelated implementations
// constantly) is large relative to the cost.
//
// The walk and the sha256 hashing below run without the store lock held:
// committed digest directories are write-protected and immutable once
// install() finishes, so reading them concurrently with another install's
// staging (which never touches an already-committed directory) or another
// Optimise pass is safe without synchronization. The lock is only taken
// per candidate pair, around relink's stat/link/rename, matching spec.md
// §5's "no component holds a lock across network or disk I/O" — hashing
// every file in the store is exactly the disk I/O that rule excludes from
// the locked section.
func (s *Store) Optimise() (linked int, err error) {
	names, err := s.ListAll()
	if err != nil {
		return 0, err
	}

	// A hard link shares one inode, so files that differ in mtime or
	// permission bits are never linked: that would change the manifest of
	// one of the implementations.
	type linkKey struct {
		sum   [sha256.Size]byte
		mtime int64
		perm  os.FileMode
	}
	seen := make(map[linkKey]string)
	for _, name := range names {
		root := filepath.Join(s.root, name)
		walkErr := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if info.IsDir() || info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
				return nil
			}

			sum, hashErr := sha256File(path)
			if hashErr != nil {
				return hashErr
			}

			key := linkKey{sum: sum, mtime: info.ModTime().Unix(), perm: info.Mode().Perm()}
			if existing, ok := seen[key]; ok {
				var n int
				lockErr := s.withLock(func() error {
					var linkErr error
					n, linkErr = relink(existing, path, info)
					return linkErr
				})
				if lockErr != nil {
					return lockErr
				}
				linked += n
				return nil
			}
			seen[key] = path
			return nil
		})
		if walkErr != nil {
			return linked, walkErr
		}
	}
	return linked, nil
}

func sha256File(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, &zerrors.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, &zerrors.IOError{Op: "read", Path: path, Err: err}
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// relink replaces dup with a hard link to original, provided they are not
// already the same inode (already linked from a prior Optimise pass).
// Returns 1 if a new link was made, 0 if they were already linked.
func relink(original, dup string, dupInfo os.FileInfo) (int, error) {
	origInfo, err := os.Stat(original)
	if err != nil {
		return 0, &zerrors.IOError{Op: "stat", Path: original, Err: err}
	}
	if os.SameFile(origInfo, dupInfo) {
		return 0, nil
	}

	// protect() strips write permission from installed directories; the
	// temporary link and the rename need it back for dup's directory.
	dir := filepath.Dir(dup)
	dirInfo, err := os.Stat(dir)
	if err != nil {
		return 0, &zerrors.IOError{Op: "stat", Path: dir, Err: err}
	}
	if err := os.Chmod(dir, dirInfo.Mode().Perm()|0o200); err != nil {
		return 0, &zerrors.IOError{Op: "chmod", Path: dir, Err: err}
	}
	defer os.Chmod(dir, dirInfo.Mode().Perm())

	tmp := dup + ".optimise-tmp"
	os.Remove(tmp)
	if err := os.Link(original, tmp); err != nil {
		// Cross-device or unsupported filesystem: leave dup as-is rather
		// than fail the whole pass.
		return 0, nil
	}
	if err := os.Rename(tmp, dup); err != nil {
		os.Remove(tmp)
		return 0, &zerrors.IOError{Op: "rename", Path: dup, Err: err}
	}
	return 1, nil
}
