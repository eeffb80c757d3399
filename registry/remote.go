package registry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hlog"
	"github.com/darinkishore/hurry/unit"
)

var logger = hlog.Tag("registry")

// RemoteClient talks to the authoritative remote registry over the wire
// protocol of spec.md §6: POST /cache/save-unit, GET /cache/restore-units.
type RemoteClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Timeout time.Duration

	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

func NewRemoteClient(baseURL, token string) *RemoteClient {
	return &RemoteClient{
		BaseURL:  baseURL,
		Token:    token,
		Client:   &http.Client{},
		Timeout:  cmn.DefaultRegistryTimeout,
		Attempts: cmn.DefaultBlobUploadAttempts,
		MinDelay: 200 * time.Millisecond,
		MaxDelay: 10 * time.Second,
	}
}

// isTransientErr mirrors cas.isTransient: a non-2xx surfaced as
// *cmn.HTTPError retries only on 5xx/unknown status, and a plain transport
// error (no HTTP status at all) is always worth a retry.
func isTransientErr(err error) bool {
	if herr, ok := err.(*cmn.HTTPError); ok {
		return herr.Transient()
	}
	return true
}

type saveUnitRequest struct {
	UnitHash       string          `json:"unit_hash"`
	ResolvedTarget string          `json:"resolved_target"`
	HostLibc       *unit.HostLibc  `json:"host_libc,omitempty"`
	Data           unit.SavedUnit  `json:"data"`
}

// restoreUnitsResponseEntry is one element of a GET /cache/restore-units response:
// the candidates registered under a single unit_hash.
type restoreUnitsResponseEntry struct {
	UnitHash   string           `json:"unit_hash"`
	Candidates []unit.SavedUnit `json:"candidates"`
}

func (c *RemoteClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	logger.Vf(2, "%s %s", method, hlog.Redact(c.BaseURL+path, c.Token))
	return c.Client.Do(req)
}

// doRetry wraps do in cmn.Retry (spec.md §7: "transient (timeout, 5xx) ->
// retry with backoff, then fall back to 'all miss'"), the same pattern
// cas.go uses for its Head/Put/Get calls. Only a transport error or a 5xx
// response is retried; any other status (2xx, 404, 409, other 4xx) is
// final and returned to the caller as-is for it to interpret.
func (c *RemoteClient) doRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var resp *http.Response
	err := cmn.Retry(ctx, c.Attempts, c.MinDelay, c.MaxDelay, isTransientErr, func() error {
		r, err := c.do(ctx, method, path, body)
		if err != nil {
			return err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			msg, _ := io.ReadAll(r.Body)
			r.Body.Close()
			return &cmn.HTTPError{Status: r.StatusCode, Method: method, Path: path, Message: string(msg)}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Lookup returns the candidates sharing unitHash for tenant (spec.md §4.3
// lookup). A 404 is a normal miss, not an error.
func (c *RemoteClient) Lookup(ctx context.Context, tenant, unitHash string) ([]unit.SavedUnit, error) {
	entries, err := c.LookupMany(ctx, tenant, []string{unitHash})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.UnitHash == unitHash {
			return e.Candidates, nil
		}
	}
	return nil, nil
}

// LookupMany batches several unit_hash lookups into a single round trip, the
// shape the restore engine actually wants: one GET /cache/restore-units per
// build instead of one per UnitPlan.
func (c *RemoteClient) LookupMany(ctx context.Context, tenant string, unitHashes []string) ([]restoreUnitsResponseEntry, error) {
	q := url.Values{}
	q.Set("unit_hashes", formatUnitHashesQuery(unitHashes))
	q.Set("tenant", tenant)
	resp, err := c.doRetry(ctx, http.MethodGet, "/cache/restore-units?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpErrorFrom(http.MethodGet, "/cache/restore-units", resp)
	}

	var entries []restoreUnitsResponseEntry
	if err := jsoniter.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Register durably stores a SavedUnit (spec.md §4.3 register). The registry
// treats a resubmission of an identical record as a no-op success; a
// differing record for the same key is surfaced here as *cmn.HTTPError with
// status 409. The caller (the uploader's worker) logs that conflict and
// keeps the existing record; it does not resubmit the new data.
func (c *RemoteClient) Register(ctx context.Context, tenant string, su unit.SavedUnit) error {
	body, err := jsoniter.Marshal(saveUnitRequest{
		UnitHash:       su.UnitHash,
		ResolvedTarget: su.ResolvedTarget,
		HostLibc:       su.HostLibc,
		Data:           su,
	})
	if err != nil {
		return err
	}
	resp, err := c.doRetry(ctx, http.MethodPost, "/cache/save-unit?tenant="+url.QueryEscape(tenant), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return httpErrorFrom(http.MethodPost, "/cache/save-unit", resp)
	}
	return nil
}

// Delete clears every SavedUnit registered by tenant (administrative
// "cache reset --remote" per spec.md §6).
func (c *RemoteClient) Delete(ctx context.Context, tenant string) error {
	resp, err := c.doRetry(ctx, http.MethodPost, "/cache/reset?tenant="+url.QueryEscape(tenant), []byte("{}"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return httpErrorFrom(http.MethodPost, "/cache/reset", resp)
	}
	return nil
}

func httpErrorFrom(method, path string, resp *http.Response) *cmn.HTTPError {
	return &cmn.HTTPError{Status: resp.StatusCode, Method: method, Path: path, Message: resp.Status}
}

// IsPermanent reports whether err is a 4xx (other than 404, handled as a
// miss upstream) that should be treated as fatal rather than retried
// (spec.md §7 "permanent (4xx other than 404) -> fatal").
func IsPermanent(err error) bool {
	herr, ok := err.(*cmn.HTTPError)
	if !ok {
		return false
	}
	return herr.Status >= 400 && herr.Status < 500 && herr.Status != http.StatusNotFound
}

func formatUnitHashesQuery(hashes []string) string {
	return strings.Join(hashes, ",")
}
