package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zeroinstall-go/zerostore/manifest"
)

func TestNewCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("expected store root to exist as a directory: %v", err)
	}
	if s.Root() != root {
		t.Fatalf("Root() = %q, want %q", s.Root(), root)
	}
}

func TestReadOnlySkipsMtimeProbe(t *testing.T) {
	root := t.TempDir()
	if _, err := New(root, ReadOnly()); err != nil {
		t.Fatalf("read-only store should skip the mtime probe: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".mtime-probe")); !os.IsNotExist(err) {
		t.Fatalf("read-only store should not have written a probe file")
	}
}

func TestContainsAndPath(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	const name = "sha256new=abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqrstuvwx"
	if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
		t.Fatal(err)
	}

	d, ok := manifest.ParseDigestString(name)
	if !ok {
		t.Fatalf("could not parse test digest %q", name)
	}
	if !s.Contains(d) {
		t.Fatalf("expected store to contain %q", name)
	}
	p, err := s.Path(d)
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(root, name) {
		t.Fatalf("Path() = %q, want %q", p, filepath.Join(root, name))
	}
}

func TestPathNotFound(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	d, _ := manifest.ParseDigestString("sha256new=zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	if _, err := s.Path(d); err == nil {
		t.Fatalf("expected ImplementationNotFound")
	}
}

func TestListAllSkipsStagingAndDotfiles(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"sha256new=aaaa", "sha256new=bbbb", ".lock", "staging-xyz"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"sha256new=aaaa", "sha256new=bbbb"}
	if len(got) != len(want) {
		t.Fatalf("ListAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListAll()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
