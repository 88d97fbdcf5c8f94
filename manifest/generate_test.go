package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateZeroByteFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "empty"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Generate(dir, Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(m.Nodes))
	}
	fn, ok := m.Nodes[0].(*FileNode)
	if !ok {
		t.Fatalf("expected FileNode, got %T", m.Nodes[0])
	}
	if fn.Size != 0 {
		t.Errorf("expected size 0, got %d", fn.Size)
	}
	// sha256 of empty input
	const emptySha256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if fn.Hash != emptySha256 {
		t.Errorf("expected hash of empty input, got %s", fn.Hash)
	}
}

func TestGenerateEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	m, err := Generate(dir, Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Nodes) != 0 {
		t.Fatalf("expected no nodes for an empty root, got %d", len(m.Nodes))
	}
	// The root itself is implicit; a nested empty directory does emit
	// exactly one "D /sub" line.
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	m, err = Generate(dir, Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(m.Nodes))
	}
	line := m.Nodes[0].Line(Sha256New)
	if line != "D /sub" {
		t.Errorf("expected %q, got %q", "D /sub", line)
	}
}

func TestGenerateNameWithSpaces(t *testing.T) {
	dir := t.TempDir()
	name := "file with spaces.txt"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Generate(dir, Sha256New)
	if err != nil {
		t.Fatal(err)
	}

	serialized := m.Bytes()
	parsed, err := Parse(serialized, Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	if string(parsed.Bytes()) != string(serialized) {
		t.Fatalf("round trip mismatch:\n%q\nvs\n%q", serialized, parsed.Bytes())
	}
	fn := parsed.Nodes[0].(*FileNode)
	if fn.Name != name {
		t.Errorf("expected name %q, got %q", name, fn.Name)
	}
}

func TestGenerateIdempotent(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "b", "f"), []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "top"), []byte("top content"), 0o644); err != nil {
		t.Fatal(err)
	}

	m1, err := Generate(dir, Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := Generate(dir, Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	if string(m1.Bytes()) != string(m2.Bytes()) {
		t.Fatalf("expected identical bytes across runs")
	}
	if m1.Digest().String() != m2.Digest().String() {
		t.Fatalf("expected identical digests across runs")
	}
}

func TestGenerateExecutableBit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("doc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := Generate(dir, Sha256New)
	if err != nil {
		t.Fatal(err)
	}
	var sawFile, sawExec bool
	for _, n := range m.Nodes {
		switch v := n.(type) {
		case *FileNode:
			if v.Name == "README.txt" {
				sawFile = true
			}
		case *ExecutableNode:
			if v.Name == "run.sh" {
				sawExec = true
			}
		}
	}
	if !sawFile || !sawExec {
		t.Fatalf("expected one regular file and one executable, got %+v", m.Nodes)
	}
}
