// Package backend provides alternate CAS remote backends for self-hosted
// deployments that already own cloud blob storage, instead of routing blob
// traffic through the hurry remote API (SPEC_FULL.md §4, grounded on the
// teacher's ais/cloud package of pluggable cloud providers).
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Backend stores blobs as objects named "<prefix>/<hex-key>" in a single
// S3 bucket. Grounded on ais/cloud/aws.go's session-per-provider pattern.
type S3Backend struct {
	bucket string
	prefix string
	svc    *s3.S3
	up     *s3manager.Uploader
	down   *s3manager.Downloader
}

func NewS3Backend(bucket, prefix, region string) (*S3Backend, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            aws.Config{Region: aws.String(region)},
	})
	if err != nil {
		return nil, err
	}
	return &S3Backend{
		bucket: bucket,
		prefix: prefix,
		svc:    s3.New(sess),
		up:     s3manager.NewUploader(sess),
		down:   s3manager.NewDownloader(sess),
	}, nil
}

func (b *S3Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *S3Backend) Head(ctx context.Context, key string) (bool, error) {
	_, err := b.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.RequestFailure); ok && aerr.StatusCode() == 404 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := b.up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   r,
	})
	return err
}

func (b *S3Backend) Get(ctx context.Context, key string, w io.Writer) error {
	buf := &aws.WriteAtBuffer{}
	if _, err := b.down.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	}); err != nil {
		return err
	}
	_, err := io.Copy(w, bytes.NewReader(buf.Bytes()))
	return err
}

func (b *S3Backend) String() string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.prefix)
}
