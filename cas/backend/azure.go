package backend

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureBackend stores blobs as block blobs named "<prefix>/<hex-key>" in a
// single container.
type AzureBackend struct {
	container azblob.ContainerURL
	prefix    string
}

func NewAzureBackend(account, key, container, prefix string) (*AzureBackend, error) {
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, err
	}
	pipeline := azblob.NewPipeline(cred, azblob.PipelineOptions{})
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", account, container))
	if err != nil {
		return nil, err
	}
	return &AzureBackend{
		container: azblob.NewContainerURL(*u, pipeline),
		prefix:    prefix,
	}, nil
}

func (b *AzureBackend) blobURL(key string) azblob.BlockBlobURL {
	name := key
	if b.prefix != "" {
		name = b.prefix + "/" + key
	}
	return b.container.NewBlockBlobURL(name)
}

func (b *AzureBackend) Head(ctx context.Context, key string) (bool, error) {
	_, err := b.blobURL(key).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if stgErr, ok := err.(azblob.StorageError); ok && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *AzureBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := azblob.UploadStreamToBlockBlob(ctx, r, b.blobURL(key), azblob.UploadStreamToBlockBlobOptions{
		BufferSize: 4 * 1024 * 1024,
		MaxBuffers: 4,
	})
	return err
}

func (b *AzureBackend) Get(ctx context.Context, key string, w io.Writer) error {
	resp, err := b.blobURL(key).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return err
	}
	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()
	_, err = io.Copy(w, body)
	return err
}
