package manifest

import (
	"bufio"
	"os"
	"sort"
	"strings"
)

// sidecarSet is the parsed form of a .xbit or .symlink file: a set of
// slash-rooted paths, one per line.
type sidecarSet map[string]bool

// loadSidecar reads a sidecar file, returning an empty set if it does not
// exist (the common case: most trees need no sidecars at all).
func loadSidecar(path string) (sidecarSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sidecarSet{}, nil
		}
		return nil, err
	}
	defer f.Close()

	set := sidecarSet{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			set[line] = true
		}
	}
	return set, scanner.Err()
}

// WriteSidecar writes paths (slash-rooted, relative to the implementation
// root) as a sidecar file, one per line, sorted for determinism. Used by
// the Archive Extractor on platforms without native executable bits or
// symlinks.
func WriteSidecar(path string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var buf strings.Builder
	for _, p := range sorted {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}
