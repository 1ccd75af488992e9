package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureStateDirs(t *testing.T) {
	root := t.TempDir()
	if err := EnsureStateDirs(root); err != nil {
		t.Fatalf("EnsureStateDirs: %v", err)
	}
	p := PathsFor(root)
	for _, dir := range []string{p.Docs, p.Blobs, p.Staging, p.Tmp, p.Tel} {
		fi, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !fi.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
	if p.Staging != filepath.Join(root, "blobs", ".staging") {
		t.Fatalf("unexpected staging path %s", p.Staging)
	}
}

func TestEnsureStateDirsRejectsFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "docs"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureStateDirs(root); err == nil {
		t.Fatal("expected error when docs is a file")
	}
}

func TestEnsureStateDirsRejectsSymlink(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	if err := os.Symlink(target, filepath.Join(root, "docs")); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}
	if err := EnsureStateDirs(root); err == nil {
		t.Fatal("expected error when docs is a symlink")
	}
}
