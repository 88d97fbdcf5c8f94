package manifest

import "fmt"

// Node is one line of a manifest. The four concrete kinds below are the
// tagged variant spec.md §3 describes; Node is implemented as an interface
// rather than a sum type because Go has no sum types, and a type switch on
// the concrete pointer types gives the same exhaustiveness as a match would.
type Node interface {
	// Line renders this node as its single manifest line (without the
	// trailing newline) for the given format.
	Line(f Format) string
	// sortKey is the name Nodes at the same directory level are ordered
	// by: byte-wise (C locale) comparison, the wire contract from
	// spec.md §4.1.
	sortKey() string
}

// FileNode is a regular, non-executable, non-symlink file.
type FileNode struct {
	Hash  string // hex content hash under the format's algorithm
	MTime int64  // seconds
	Size  int64
	Name  string // no newline, no "/"
}

func (n *FileNode) Line(Format) string {
	return fmt.Sprintf("F %s %d %d %s", n.Hash, n.MTime, n.Size, n.Name)
}
func (n *FileNode) sortKey() string { return n.Name }

// ExecutableNode is a file with the user-execute bit set (or recorded in
// the .xbit sidecar on platforms without Unix permissions).
type ExecutableNode struct {
	Hash  string
	MTime int64
	Size  int64
	Name  string
}

func (n *ExecutableNode) Line(Format) string {
	return fmt.Sprintf("X %s %d %d %s", n.Hash, n.MTime, n.Size, n.Name)
}
func (n *ExecutableNode) sortKey() string { return n.Name }

// SymlinkNode is a symbolic link; Hash is over the raw UTF-8 bytes of the
// link target with no terminator, and there is no mtime field since
// symlink mtimes are not observable portably.
type SymlinkNode struct {
	Hash string
	Size int64 // length of the target string in bytes
	Name string
}

func (n *SymlinkNode) Line(Format) string {
	return fmt.Sprintf("S %s %d %s", n.Hash, n.Size, n.Name)
}
func (n *SymlinkNode) sortKey() string { return n.Name }

// DirNode is a directory. MTime/HasMTime are only meaningful for the "old"
// format family (Sha1, Sha256), which emits directory lines carrying an
// mtime that contributes to the digest; the "new" family never sets
// HasMTime and emits "D <full-path>" alone.
type DirNode struct {
	FullPath string // slash-rooted, relative to the implementation root
	MTime    int64
	HasMTime bool
}

func (n *DirNode) Line(f Format) string {
	if f.New() || !n.HasMTime {
		return fmt.Sprintf("D %s", n.FullPath)
	}
	return fmt.Sprintf("D %d %s", n.MTime, n.FullPath)
}

// sortKey for a directory is its full path: directories are visited
// depth-first and are never compared against files for ordering purposes
// (see generate.go), but the key is needed to satisfy the Node interface.
func (n *DirNode) sortKey() string { return n.FullPath }
