package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/darinkishore/hurry/registry"
	"github.com/darinkishore/hurry/unit"
)

func TestRegistryRegisterThenLookupUsesRemote(t *testing.T) {
	stored := map[string][]unit.SavedUnit{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/cache/save-unit":
			var body struct {
				UnitHash string         `json:"unit_hash"`
				Data     unit.SavedUnit `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			stored[body.UnitHash] = append(stored[body.UnitHash], body.Data)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/cache/restore-units":
			hashes := r.URL.Query().Get("unit_hashes")
			candidates := stored[hashes]
			if len(candidates) == 0 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"unit_hash": hashes, "candidates": candidates},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	remote := registry.NewRemoteClient(srv.URL, "test-token")
	local, err := registry.NewLocalCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	defer local.Close()

	reg := registry.New(remote, local, registry.HostFacts{LibcFamily: "glibc", LibcVersion: "2.35"})

	su := unit.SavedUnit{UnitHash: "h1", ResolvedTarget: "x86_64-unknown-linux-gnu"}
	if err := reg.Register(context.Background(), "tenant-a", su); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok, err := reg.Lookup(context.Background(), "tenant-a", "h1", "x86_64-unknown-linux-gnu")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || got.UnitHash != "h1" {
		t.Fatalf("expected a hit for h1, got %+v ok=%v", got, ok)
	}
}

func TestRegistryLookupMissReturnsFalseNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	remote := registry.NewRemoteClient(srv.URL, "test-token")
	reg := registry.New(remote, nil, registry.HostFacts{LibcFamily: "glibc", LibcVersion: "2.35"})

	_, ok, err := reg.Lookup(context.Background(), "tenant-a", "missing", "x86_64-unknown-linux-gnu")
	if err != nil {
		t.Fatalf("expected no error on miss, got %v", err)
	}
	if ok {
		t.Fatalf("expected miss")
	}
}
