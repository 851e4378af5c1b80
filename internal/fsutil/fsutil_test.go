package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCopyFilePreservesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	writeFile(t, src, "hello")

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "hello" {
		t.Fatalf("dst content = %q, err = %v", string(b), err)
	}
}

func TestCopyFileModeSetsMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bin")
	dst := filepath.Join(dir, "bin-copy")
	writeFile(t, src, "#!/bin/sh\n")

	if err := CopyFileMode(src, dst, 0o755); err != nil {
		t.Fatalf("CopyFileMode: %v", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("exec bit not set: %v", info.Mode())
	}
}

func TestCopyTreeDereferencesSymlinks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, filepath.Join(src, "real.txt"), "content")
	writeFile(t, filepath.Join(src, "sub", "nested.txt"), "nested")
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree: %v", err)
	}

	// The copied link must be a regular file, not a symlink.
	info, err := os.Lstat(filepath.Join(dst, "link.txt"))
	if err != nil {
		t.Fatalf("lstat copied link: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Fatalf("copied entry is still a symlink")
	}
	b, err := os.ReadFile(filepath.Join(dst, "link.txt"))
	if err != nil || string(b) != "content" {
		t.Fatalf("dereferenced content = %q, err = %v", string(b), err)
	}
	if _, err := os.Stat(filepath.Join(dst, "sub", "nested.txt")); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
}

func TestCopyTreeSkipsDanglingSymlink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, filepath.Join(src, "ok.txt"), "ok")
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(src, "dangling")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree with dangling link: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dst, "dangling")); !os.IsNotExist(err) {
		t.Fatalf("dangling link should not be copied, err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "ok.txt")); err != nil {
		t.Fatalf("regular file missing: %v", err)
	}
}

func TestCopyTreeRejectsFileSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "file")
	writeFile(t, src, "x")
	if err := CopyTree(src, filepath.Join(dir, "out")); err == nil {
		t.Fatalf("expected error for non-directory source")
	}
}

func TestDirHelpers(t *testing.T) {
	dir := t.TempDir()
	if !DirExists(dir) {
		t.Fatalf("DirExists(%s) = false", dir)
	}
	if DirExists(filepath.Join(dir, "missing")) {
		t.Fatalf("DirExists on missing path = true")
	}
	if DirHasEntries(dir) {
		t.Fatalf("empty dir reported as having entries")
	}
	writeFile(t, filepath.Join(dir, "f"), "x")
	if !DirHasEntries(dir) {
		t.Fatalf("dir with file reported empty")
	}
	if !FileExists(filepath.Join(dir, "f")) {
		t.Fatalf("FileExists = false for regular file")
	}
	if FileExists(dir) {
		t.Fatalf("FileExists = true for directory")
	}
}
