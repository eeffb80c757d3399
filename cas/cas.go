package cas

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hash"
)

// CAS is the content-addressed store client used throughout restore/save:
// a local flat-file cache in front of a pluggable remote Backend. Keys are
// lowercase hex encodings of hash.Digest (spec.md §3 "rendered as lowercase
// hex for external use").
type CAS struct {
	Local   *LocalStore
	Backend Backend

	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

func New(local *LocalStore, backend Backend) *CAS {
	return &CAS{
		Local:    local,
		Backend:  backend,
		Attempts: cmn.DefaultBlobUploadAttempts,
		MinDelay: 200 * time.Millisecond,
		MaxDelay: 10 * time.Second,
	}
}

func isTransient(err error) bool {
	if herr, ok := err.(*cmn.HTTPError); ok {
		return herr.Transient()
	}
	return true // network errors with no HTTP status are treated as transient
}

// Head reports whether key is present, checking the local cache first.
func (c *CAS) Head(ctx context.Context, key string) (bool, error) {
	if c.Local.Has(key) {
		return true, nil
	}
	var present bool
	err := cmn.Retry(ctx, c.Attempts, c.MinDelay, c.MaxDelay, isTransient, func() error {
		var err error
		present, err = c.Backend.Head(ctx, key)
		return err
	})
	return present, err
}

// Put uploads content, verifying it hashes to key, and is idempotent: a
// Head-then-Put-if-missing sequence (spec.md §4.6 "Work") so redundant
// uploads of a deduplicated blob across units cost one round trip, not a
// full re-upload.
func (c *CAS) Put(ctx context.Context, key string, content []byte) error {
	if hash.Bytes(content).String() != key {
		return &cmn.HashMismatchError{Key: key, Got: hash.Bytes(content).String(), Expected: key}
	}
	if err := c.Local.Put(key, bytes.NewReader(content)); err != nil {
		return err
	}
	present, err := c.headRemote(ctx, key)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	return cmn.Retry(ctx, c.Attempts, c.MinDelay, c.MaxDelay, isTransient, func() error {
		return c.Backend.Put(ctx, key, bytes.NewReader(content), int64(len(content)))
	})
}

func (c *CAS) headRemote(ctx context.Context, key string) (bool, error) {
	var present bool
	err := cmn.Retry(ctx, c.Attempts, c.MinDelay, c.MaxDelay, isTransient, func() error {
		var err error
		present, err = c.Backend.Head(ctx, key)
		return err
	})
	return present, err
}

// Get streams the content of key to w, verifying its hash as it streams
// (spec.md §4.7 "the client verifies the hash as it streams"). On a hash
// mismatch the caller must invalidate any local cached copy (spec.md §7);
// Get does that itself before returning the error.
func (c *CAS) Get(ctx context.Context, key string, w io.Writer) error {
	if rc, err := c.Local.Open(key); err == nil {
		defer rc.Close()
		return c.copyVerified(key, rc, w)
	}

	var buf bytes.Buffer
	err := cmn.Retry(ctx, c.Attempts, c.MinDelay, c.MaxDelay, isTransient, func() error {
		buf.Reset()
		return c.Backend.Get(ctx, key, &buf)
	})
	if err != nil {
		return err
	}
	content := buf.Bytes()
	if got := hash.Bytes(content).String(); got != key {
		return &cmn.HashMismatchError{Key: key, Got: got, Expected: key}
	}
	if err := c.Local.Put(key, bytes.NewReader(content)); err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}

func (c *CAS) copyVerified(key string, r io.Reader, w io.Writer) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if got := hash.Bytes(content).String(); got != key {
		// Local copy is corrupt; drop it so the next Get re-fetches remotely.
		c.Local.Remove(key)
		return &cmn.HashMismatchError{Key: key, Got: got, Expected: key}
	}
	_, err = w.Write(content)
	return err
}
