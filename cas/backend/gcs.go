package backend

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBackend stores blobs as objects named "<prefix>/<hex-key>" in a single
// Google Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSBackend(ctx context.Context, bucket, prefix string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSBackend{client: client, bucket: bucket, prefix: prefix}, nil
}

func (b *GCSBackend) objectName(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.objectName(key))
}

func (b *GCSBackend) Head(ctx context.Context, key string) (bool, error) {
	_, err := b.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *GCSBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	w := b.object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *GCSBackend) Get(ctx context.Context, key string, w io.Writer) error {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(w, r)
	return err
}
