package targetfs_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/darinkishore/hurry/targetfs"
)

func TestJoinRefusesEscape(t *testing.T) {
	dir := t.TempDir()
	if _, err := targetfs.Join(dir, "debug", "../../etc/passwd"); err == nil {
		t.Fatalf("expected error for escaping relative path")
	}
}

func TestJoinAcceptsNested(t *testing.T) {
	dir := t.TempDir()
	abs, err := targetfs.Join(dir, "debug", "deps/libfoo.rlib")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	want := filepath.Join(dir, "debug", "deps/libfoo.rlib")
	if abs != want {
		t.Fatalf("got %q want %q", abs, want)
	}
}

func TestWriteFileAtomicSetsModeAndMtime(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "debug", "deps", "libfoo.rlib")
	content := []byte("binary artifact bytes")
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano()

	if err := targetfs.WriteFileAtomic(abs, bytes.NewReader(content), mtime, true); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch")
	}
	fi, err := os.Stat(abs)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode()&0o111 == 0 {
		t.Fatalf("expected executable bit set")
	}
	if fi.ModTime().UnixNano() != mtime {
		t.Fatalf("mtime mismatch: got %d want %d", fi.ModTime().UnixNano(), mtime)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Join(dir, "debug", "deps"))
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 entry, found %d", len(entries))
	}
}

func TestWriteFileAtomicIdempotent(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "debug", "deps", "libfoo.rlib")
	content := []byte("content")
	mtime := time.Now().UnixNano()

	if err := targetfs.WriteFileAtomic(abs, bytes.NewReader(content), mtime, false); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := targetfs.WriteFileAtomic(abs, bytes.NewReader(content), mtime, false); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, _ := os.ReadFile(abs)
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch after repeat write")
	}
}

func TestLockExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock")

	l1, err := targetfs.TryLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer l1.Unlock()

	if _, err := targetfs.TryLock(path); err == nil {
		t.Fatalf("expected second lock to fail while first is held")
	}
}
