package cas

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v3"
)

// Codec is the streaming compression codec used on the wire and at rest
// (spec.md §4.7 "Compression"). The choice is a negotiable per-deployment
// parameter; the content hash is always computed over the uncompressed
// bytes regardless of codec.
type Codec interface {
	Name() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

func CodecByName(name string) Codec {
	switch name {
	case "lz4":
		return lz4Codec{}
	default:
		return zstdCodec{}
	}
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

// lz4Codec wraps pierrec/lz4, a lower-decode-cost alternative a deployment
// can select when CPU on the restore path matters more than ratio.
type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
