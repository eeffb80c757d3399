package cas_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/darinkishore/hurry/cas"
	"github.com/darinkishore/hurry/hash"
)

type fakeBackend struct {
	mu    sync.Mutex
	blobs map[string][]byte
	puts  int
}

func newFakeBackend() *fakeBackend { return &fakeBackend{blobs: map[string][]byte{}} }

func (f *fakeBackend) Head(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[key]
	return ok, nil
}

func (f *fakeBackend) Put(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.blobs[key] = data
	f.puts++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Get(_ context.Context, key string, w io.Writer) error {
	f.mu.Lock()
	data, ok := f.blobs[key]
	f.mu.Unlock()
	if !ok {
		return io.EOF
	}
	_, err := w.Write(data)
	return err
}

func newTestCAS(t *testing.T) (*cas.CAS, *fakeBackend) {
	t.Helper()
	local, err := cas.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	backend := newFakeBackend()
	return cas.New(local, backend), backend
}

func TestPutGetRoundtrip(t *testing.T) {
	c, _ := newTestCAS(t)
	content := []byte("compiled artifact bytes")
	key := hash.Bytes(content).String()

	if err := c.Put(context.Background(), key, content); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var buf bytes.Buffer
	if err := c.Get(context.Background(), key, &buf); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatalf("content mismatch")
	}
}

func TestPutIdempotentSingleUpload(t *testing.T) {
	c, backend := newTestCAS(t)
	content := []byte("dedup me")
	key := hash.Bytes(content).String()

	if err := c.Put(context.Background(), key, content); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := c.Put(context.Background(), key, content); err != nil {
		t.Fatalf("second put: %v", err)
	}
	if backend.puts != 1 {
		t.Fatalf("expected exactly 1 remote upload, got %d", backend.puts)
	}
}

func TestPutRejectsKeyMismatch(t *testing.T) {
	c, _ := newTestCAS(t)
	err := c.Put(context.Background(), "deadbeef", []byte("not matching"))
	if err == nil {
		t.Fatalf("expected hash mismatch error")
	}
}

func TestGetFromLocalCacheAvoidsRemote(t *testing.T) {
	c, backend := newTestCAS(t)
	content := []byte("cached locally")
	key := hash.Bytes(content).String()
	if err := c.Put(context.Background(), key, content); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Remove from the fake remote to prove Get is served from local cache.
	backend.mu.Lock()
	delete(backend.blobs, key)
	backend.mu.Unlock()

	var buf bytes.Buffer
	if err := c.Get(context.Background(), key, &buf); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatalf("content mismatch")
	}
}
