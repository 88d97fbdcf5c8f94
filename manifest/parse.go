package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeroinstall-go/zerostore/zerrors"
)

// Parse reads a manifest's canonical byte form back into a Manifest under
// the given format. An unknown leading character, or the wrong number of
// space-separated fields for that leader, fails with *zerrors.MalformedManifest.
func Parse(data []byte, f Format) (*Manifest, error) {
	text := string(data)
	// A trailing newline terminates the last line rather than starting an
	// empty one; strip it before splitting so we don't synthesize a
	// spurious empty final node.
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return &Manifest{Format: f}, nil
	}

	lines := strings.Split(text, "\n")
	nodes := make([]Node, 0, len(lines))
	for i, line := range lines {
		node, err := parseLine(line, f)
		if err != nil {
			return nil, &zerrors.MalformedManifest{Line: i + 1, Reason: err.Error()}
		}
		nodes = append(nodes, node)
	}
	return &Manifest{Format: f, Nodes: nodes}, nil
}

func parseLine(line string, f Format) (Node, error) {
	if line == "" {
		return nil, fmt.Errorf("empty line")
	}
	leader := line[0]
	if len(line) < 2 || line[1] != ' ' {
		return nil, fmt.Errorf("malformed line for leader %q", leader)
	}
	switch leader {
	case 'F', 'X':
		parts := strings.SplitN(line[2:], " ", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("expected 4 fields after leader %q, got %d", leader, len(parts))
		}
		mtime, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad mtime: %w", err)
		}
		size, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad size: %w", err)
		}
		if leader == 'F' {
			return &FileNode{Hash: parts[0], MTime: mtime, Size: size, Name: parts[3]}, nil
		}
		return &ExecutableNode{Hash: parts[0], MTime: mtime, Size: size, Name: parts[3]}, nil
	case 'S':
		parts := strings.SplitN(line[2:], " ", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("expected 3 fields after leader 'S', got %d", len(parts))
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad size: %w", err)
		}
		return &SymlinkNode{Hash: parts[0], Size: size, Name: parts[2]}, nil
	case 'D':
		rest := line[2:]
		if f.New() {
			return &DirNode{FullPath: rest}, nil
		}
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected 2 fields after leader 'D', got %d", len(parts))
		}
		mtime, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad mtime: %w", err)
		}
		return &DirNode{FullPath: parts[1], MTime: mtime, HasMTime: true}, nil
	default:
		return nil, fmt.Errorf("unknown leader %q", leader)
	}
}
