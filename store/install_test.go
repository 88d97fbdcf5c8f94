package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/zerrors"
)

func mustDigestOf(t *testing.T, dir string) manifest.Digest {
	t.Helper()
	m, err := manifest.Generate(dir, manifest.Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	return m.Digest()
}

func TestAddDirectorySuccess(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file1"), []byte("AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "file2"), []byte("BBBB"), 0o644); err != nil {
		t.Fatal(err)
	}

	expected := mustDigestOf(t, src)

	path, err := s.AddDirectory(context.Background(), src, expected)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != expected.String() {
		t.Fatalf("installed at %q, want basename %q", path, expected.String())
	}
	if !s.Contains(expected) {
		t.Fatalf("expected store to contain the installed digest")
	}

	if _, err := os.Stat(filepath.Join(path, ".manifest")); err != nil {
		t.Fatalf("expected .manifest to be written: %v", err)
	}

	// The tree is write-protected: overwriting a file must fail.
	if unixPerms() {
		err := os.WriteFile(filepath.Join(path, "file1"), []byte("changed"), 0o644)
		if err == nil {
			t.Fatalf("expected write to a protected implementation to fail")
		}
	}
}

func TestAddDirectoryDigestMismatch(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file1"), []byte("AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}

	wrong := manifest.NewDigest(manifest.Sha256New, []byte("not the real hash, 32 bytes!!!!!"))

	_, err = s.AddDirectory(context.Background(), src, wrong)
	var mismatch *zerrors.DigestMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *zerrors.DigestMismatch, got %v (%T)", err, err)
	}

	names, _ := s.ListAll()
	if len(names) != 0 {
		t.Fatalf("a failed install must not leave anything in the store, found %v", names)
	}
}

func TestAddDirectoryAlreadyInStore(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file1"), []byte("AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}
	expected := mustDigestOf(t, src)

	if _, err := s.AddDirectory(context.Background(), src, expected); err != nil {
		t.Fatal(err)
	}

	_, err = s.AddDirectory(context.Background(), src, expected)
	var already *zerrors.AlreadyInStore
	if !errors.As(err, &already) {
		t.Fatalf("expected *zerrors.AlreadyInStore on a race/re-fetch, got %v (%T)", err, err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file1"), []byte("AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}
	expected := mustDigestOf(t, src)

	path, err := s.AddDirectory(context.Background(), src, expected)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Verify(filepath.Base(path)); err != nil {
		t.Fatalf("freshly installed implementation should verify clean: %v", err)
	}

	if unixPerms() {
		if err := unprotect(path); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(path, "file1"), []byte("tampered!"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := s.Verify(filepath.Base(path)); err == nil {
			t.Fatalf("expected Verify to detect tampering")
		}
	}
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file1"), []byte("AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}
	expected := mustDigestOf(t, src)

	if _, err := s.AddDirectory(context.Background(), src, expected); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(expected); err != nil {
		t.Fatal(err)
	}
	if s.Contains(expected) {
		t.Fatalf("expected implementation to be gone after Remove")
	}
}
