package cas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hlog"
)

// HTTPBackend is the default CAS backend: the hurry remote API's
// HEAD/PUT/GET /cas/<hex-key> surface (spec.md §6). Grounded on the
// teacher's api package, which also builds requests by hand over
// net/http and retries on connection errors rather than reaching for a
// heavier HTTP client library at this layer.
type HTTPBackend struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Codec   Codec

	HeadTimeout   time.Duration
	PutGetTimeout time.Duration
}

var logger = hlog.Tag("cas")

func NewHTTPBackend(baseURL, token string, codec Codec) *HTTPBackend {
	return &HTTPBackend{
		BaseURL:       baseURL,
		Token:         token,
		Client:        &http.Client{},
		Codec:         codec,
		HeadTimeout:   cmn.DefaultCASHeadTimeout,
		PutGetTimeout: cmn.DefaultCASPutGetTimeout,
	}
}

func (b *HTTPBackend) url(key string) string {
	return fmt.Sprintf("%s/cas/%s", b.BaseURL, key)
}

func (b *HTTPBackend) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+b.Token)
}

func (b *HTTPBackend) Head(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.HeadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.url(key), nil)
	if err != nil {
		return false, err
	}
	b.authorize(req)

	logger.Vf(2, "HEAD %s", hlog.Redact(b.url(key), b.Token))
	resp, err := b.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, httpError(http.MethodHead, b.url(key), resp)
	}
}

func (b *HTTPBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, b.PutGetTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	go func() {
		cw, err := b.Codec.NewWriter(pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(cw, r); err != nil {
			cw.Close()
			pw.CloseWithError(err)
			return
		}
		if err := cw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.url(key), pr)
	if err != nil {
		return err
	}
	b.authorize(req)
	req.Header.Set("Content-Encoding", b.Codec.Name())

	logger.Vf(2, "PUT %s", hlog.Redact(b.url(key), b.Token))
	resp, err := b.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return httpError(http.MethodPut, b.url(key), resp)
	}
	return nil
}

func (b *HTTPBackend) Get(ctx context.Context, key string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, b.PutGetTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url(key), nil)
	if err != nil {
		return err
	}
	b.authorize(req)

	logger.Vf(2, "GET %s", hlog.Redact(b.url(key), b.Token))
	resp, err := b.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpError(http.MethodGet, b.url(key), resp)
	}

	cr, err := b.Codec.NewReader(resp.Body)
	if err != nil {
		return err
	}
	defer cr.Close()
	_, err = io.Copy(w, cr)
	return err
}

func httpError(method, path string, resp *http.Response) *cmn.HTTPError {
	return &cmn.HTTPError{Status: resp.StatusCode, Method: method, Path: path, Message: resp.Status}
}
