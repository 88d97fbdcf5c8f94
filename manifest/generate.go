package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
)

// reservedNames are store bookkeeping files that never appear as manifest
// nodes themselves.
var reservedNames = map[string]bool{
	".manifest": true,
	".xbit":     true,
	".symlink":  true,
}

// Generate walks the directory tree rooted at dir and builds its canonical
// Manifest under format f. Generating the same tree twice with the same
// format yields bit-identical Nodes and therefore bit-identical Bytes() —
// this is the idempotence property spec.md §8 requires.
func Generate(dir string, f Format) (*Manifest, error) {
	xbits, err := loadSidecar(filepath.Join(dir, ".xbit"))
	if err != nil {
		return nil, err
	}
	symlinks, err := loadSidecar(filepath.Join(dir, ".symlink"))
	if err != nil {
		return nil, err
	}

	m := &Manifest{Format: f}
	if err := walk(dir, "/", f, xbits, symlinks, m); err != nil {
		return nil, err
	}
	return m, nil
}

// unixPerms reports whether the host filesystem carries real Unix
// executable bits. On platforms that don't, executability and symlink-ness
// are recorded in the .xbit/.symlink sidecars instead of file metadata.
func unixPerms() bool {
	return runtime.GOOS != "windows"
}

func walk(root, relDir string, f Format, xbits, symlinks sidecarSet, m *Manifest) error {
	absDir := filepath.Join(root, filepath.FromSlash(relDir))
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("manifest: reading %s: %w", absDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if relDir == "/" && reservedNames[name] {
			continue
		}

		relPath := path.Join(relDir, name)
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("manifest: stat %s: %w", relPath, err)
		}

		isSymlink := info.Mode()&fs.ModeSymlink != 0
		if !unixPerms() {
			isSymlink = symlinks[relPath]
		}

		switch {
		case isSymlink:
			node, err := symlinkNode(filepath.Join(root, filepath.FromSlash(relPath)), name, f, unixPerms())
			if err != nil {
				return err
			}
			m.Nodes = append(m.Nodes, node)

		case entry.IsDir():
			dirNode := &DirNode{FullPath: relPath}
			if !f.New() {
				dirNode.HasMTime = true
				dirNode.MTime = info.ModTime().Unix()
			}
			m.Nodes = append(m.Nodes, dirNode)
			if err := walk(root, relPath, f, xbits, symlinks, m); err != nil {
				return err
			}

		default:
			executable := false
			if unixPerms() {
				executable = info.Mode()&0o100 != 0
			} else {
				executable = xbits[relPath]
			}
			node, err := fileNode(filepath.Join(root, filepath.FromSlash(relPath)), name, info, executable, f)
			if err != nil {
				return err
			}
			m.Nodes = append(m.Nodes, node)
		}
	}
	return nil
}

func fileNode(absPath, name string, info fs.FileInfo, executable bool, f Format) (Node, error) {
	h := f.NewHash()
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: opening %s: %w", absPath, err)
	}
	defer file.Close()

	size, err := copyHash(h, file)
	if err != nil {
		return nil, fmt.Errorf("manifest: hashing %s: %w", absPath, err)
	}

	hash := encodeContentHash(f, h)
	mtime := info.ModTime().Unix()
	if executable {
		return &ExecutableNode{Hash: hash, MTime: mtime, Size: size, Name: name}, nil
	}
	return &FileNode{Hash: hash, MTime: mtime, Size: size, Name: name}, nil
}

// symlinkNode computes the SymlinkNode for a recorded symlink. On
// platforms with real Unix symlinks, the target comes from readlink(2).
// On platforms that can only record symlink-ness via the .symlink
// sidecar, the extractor instead wrote the target string as the file's
// literal content (see the archive package's sink.writeSymlink), so the target is
// read back the same way.
func symlinkNode(absPath, name string, f Format, real bool) (Node, error) {
	var target string
	if real {
		t, err := os.Readlink(absPath)
		if err != nil {
			return nil, fmt.Errorf("manifest: reading symlink %s: %w", absPath, err)
		}
		target = t
	} else {
		raw, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("manifest: reading symlink placeholder %s: %w", absPath, err)
		}
		target = string(raw)
	}
	targetBytes := []byte(target)
	h := f.NewHash()
	h.Write(targetBytes)
	return &SymlinkNode{Hash: encodeContentHash(f, h), Size: int64(len(targetBytes)), Name: name}, nil
}
