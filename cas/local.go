package cas

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// presenceFilterCapacity bounds the in-memory existence filter; a false
// positive just costs one wasted os.Stat, never a correctness problem, so
// the capacity only needs to be roughly the expected local blob count, not
// an exact one.
const presenceFilterCapacity = 1 << 20

// LocalStore is a flat-file blob cache under the user cache directory
// (spec.md §6 persisted state layout: "v1/cargo/cas/<hex>"), adapted here
// to "v1/cas/<hex>". Writes are temp-file-then-rename so a concurrent
// reader never observes a partial blob, and two concurrent Put calls for
// the same key are safe (spec.md §4.7 Idempotence).
//
// Has is on the hot path of every restore step (spec.md §4.4 step 3c is
// skipped entirely on a local hit), and misses there are the common case
// early in a build before the local cache has warmed up. A cuckoo filter
// (the teacher's choice for exactly this kind of membership probe ahead of
// a syscall) lets a definite-absent answer skip os.Stat; a maybe-present
// answer still falls through to the real check below.
type LocalStore struct {
	root   string
	mu     sync.Mutex
	filter *cuckoo.Filter
}

func NewLocalStore(cacheDir string) (*LocalStore, error) {
	root := filepath.Join(cacheDir, "v1", "cas")
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	return &LocalStore{root: root, filter: cuckoo.NewFilter(presenceFilterCapacity)}, nil
}

func (s *LocalStore) path(key string) string { return filepath.Join(s.root, key) }

func (s *LocalStore) Has(key string) bool {
	s.mu.Lock()
	maybePresent := s.filter.Lookup([]byte(key))
	s.mu.Unlock()
	if !maybePresent {
		return false
	}
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	return os.Open(s.path(key))
}

// Put stores uncompressed content under key without checking that it
// hashes to key; callers (CAS.Put, CAS.Get) verify that first. Idempotent:
// if the destination already exists it is left untouched rather than
// rewritten.
func (s *LocalStore) Put(key string, r io.Reader) error {
	if s.Has(key) {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	tmp, err := os.CreateTemp(s.root, key+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	// Zero-length blobs are legal (e.g. an empty dependency-list file); the
	// caller has already verified the content hashes to key before this is
	// invoked (see CAS.Put), so there is nothing further to check here.
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return err
	}
	s.mu.Lock()
	s.filter.InsertUnique([]byte(key))
	s.mu.Unlock()
	return nil
}

// Remove deletes a locally cached copy of key (used when a hash mismatch is
// detected on download — spec.md §7 "invalidate any local cached copy").
func (s *LocalStore) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	s.mu.Lock()
	s.filter.Delete([]byte(key))
	s.mu.Unlock()
	return nil
}
