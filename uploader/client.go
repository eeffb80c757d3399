package uploader

import (
	"bytes"
	"os"

	"github.com/valyala/fasthttp"

	"github.com/darinkishore/hurry/unit"
)

// Client is the save engine's handle on the background worker: it
// implements save.Submitter by forwarding each captured unit over the
// worker's loopback HTTP endpoint and returning immediately (spec.md §4.5
// "do not block the caller on network I/O" — the blocking here is a single
// local loopback POST, not the network round trip to CAS/registry, which
// the worker performs asynchronously).
type Client struct {
	CacheDir string
}

func NewClient(cacheDir string) *Client { return &Client{CacheDir: cacheDir} }

// Submit starts the worker if necessary and hands off su/blobs. Failures
// are logged, never returned: a lost submission degrades this build to a
// cache miss on some future restore, which is always safe (spec.md §7
// "the cache is always optional").
func (c *Client) Submit(tenant string, su unit.SavedUnit, blobs map[string][]byte) {
	self, err := selfExecPath()
	if err != nil {
		logger.Warningf("submit %s: cannot resolve self path to start worker: %v", su.UnitHash, err)
		return
	}
	if err := EnsureWorker(c.CacheDir, self); err != nil {
		logger.Warningf("submit %s: worker not available: %v", su.UnitHash, err)
		return
	}

	addr, err := os.ReadFile(endpointPath(c.CacheDir))
	if err != nil {
		logger.Warningf("submit %s: worker endpoint not found: %v", su.UnitHash, err)
		return
	}

	var body bytes.Buffer
	if err := encodeSubmission(&body, submission{Tenant: tenant, Unit: su, Blobs: blobs}); err != nil {
		logger.Warningf("submit %s: encode failed: %v", su.UnitHash, err)
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://" + string(addr) + "/submit")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetBody(body.Bytes())

	if err := fasthttp.Do(req, resp); err != nil {
		logger.Warningf("submit %s: request to worker failed: %v", su.UnitHash, err)
		return
	}
	if resp.StatusCode() != fasthttp.StatusAccepted {
		logger.Warningf("submit %s: worker returned %d", su.UnitHash, resp.StatusCode())
	}
}

// Endpoint returns the loopback address last recorded by a worker for this
// cache directory, or an error if none was ever recorded. It does not check
// that the worker is still running.
func (c *Client) Endpoint() (string, error) {
	addr, err := os.ReadFile(endpointPath(c.CacheDir))
	if err != nil {
		return "", err
	}
	return string(addr), nil
}

// Stop asks the running worker to exit once in-flight uploads finish
// (spec.md §6 "daemon stop"). A no-op, not an error, if no worker is
// running.
func (c *Client) Stop() error {
	addr, err := c.Endpoint()
	if err != nil {
		return nil
	}
	return c.post(addr, "/shutdown")
}

// Status returns the worker's reported idle duration, for "debug daemon
// status".
func (c *Client) Status() (string, error) {
	addr, err := c.Endpoint()
	if err != nil {
		return "", err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://" + addr + "/status")
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := fasthttp.Do(req, resp); err != nil {
		return "", err
	}
	return string(resp.Body()), nil
}

func (c *Client) post(addr, path string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://" + addr + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	return fasthttp.Do(req, resp)
}

// LogPath returns the worker log file path for this cache directory, for
// "debug daemon log".
func (c *Client) LogPath() string { return logPath(c.CacheDir) }
