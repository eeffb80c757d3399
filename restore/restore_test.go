package restore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/darinkishore/hurry/cas"
	"github.com/darinkishore/hurry/hash"
	"github.com/darinkishore/hurry/registry"
	"github.com/darinkishore/hurry/restore"
	"github.com/darinkishore/hurry/unit"
)

// fakeBlobBackend implements cas.Backend in memory.
type fakeBlobBackend struct{ blobs map[string][]byte }

func (f *fakeBlobBackend) Head(_ context.Context, key string) (bool, error) {
	_, ok := f.blobs[key]
	return ok, nil
}
func (f *fakeBlobBackend) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	return nil
}
func (f *fakeBlobBackend) Get(_ context.Context, key string, w io.Writer) error {
	data, ok := f.blobs[key]
	if !ok {
		return os.ErrNotExist
	}
	_, err := w.Write(data)
	return err
}

func newTestEngine(t *testing.T, stored map[string][]unit.SavedUnit, blobs map[string][]byte) *restore.Engine {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cache/restore-units" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hashes := r.URL.Query().Get("unit_hashes")
		candidates := stored[hashes]
		if len(candidates) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"unit_hash": hashes, "candidates": candidates},
		})
	}))
	t.Cleanup(srv.Close)

	remote := registry.NewRemoteClient(srv.URL, "test-token")
	reg := registry.New(remote, nil, registry.HostFacts{LibcFamily: "glibc", LibcVersion: "2.35"})

	local, err := cas.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	casClient := cas.New(local, &fakeBlobBackend{blobs: blobs})

	return restore.New(reg, casClient)
}

func mustDigest(s string) hash.Digest { return hash.Bytes([]byte(s)) }

func TestRestoreHitWritesFileSentinelAndSynthesized(t *testing.T) {
	content := []byte("compiled rlib bytes")
	blobKey := hash.Bytes(content).String()
	unitHash := mustDigest("unit-1")

	template := "path=" + unit.Placeholder + "/out"

	su := unit.SavedUnit{
		UnitHash:       unitHash.String(),
		ResolvedTarget: "x86_64-unknown-linux-gnu",
		Files: []unit.FileEntry{
			{RelativePath: "deps/libserde.rlib", BlobKey: blobKey, MtimeNS: 1000, ExecutableBit: false},
		},
		Sentinels: []unit.SentinelEntry{
			{RelativePath: ".fingerprint/serde/lib-serde", MtimeNS: 1000},
		},
		Synthesized: []unit.SynthesizedEntry{
			{RelativePath: "build/serde/root-output", ContentTemplate: template, MtimeNS: 1000},
		},
	}

	stored := map[string][]unit.SavedUnit{unitHash.String(): {su}}
	blobs := map[string][]byte{blobKey: content}

	engine := newTestEngine(t, stored, blobs)
	targetDir := t.TempDir()

	plan := unit.UnitPlan{UnitHash: unitHash, ResolvedTarget: "x86_64-unknown-linux-gnu"}
	results, err := engine.Restore(context.Background(), "tenant-a", targetDir, "debug", []unit.UnitPlan{plan})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if results[0].Outcome != unit.OutcomeHit {
		t.Fatalf("expected hit, got %s", results[0].Outcome)
	}

	gotFile, err := os.ReadFile(filepath.Join(targetDir, "debug", "deps/libserde.rlib"))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if !bytes.Equal(gotFile, content) {
		t.Fatalf("restored file content mismatch")
	}

	sentinelPath := filepath.Join(targetDir, "debug", ".fingerprint/serde/lib-serde")
	if _, err := os.Stat(sentinelPath); err != nil {
		t.Fatalf("expected sentinel file to exist: %v", err)
	}

	// Critical regression case (spec.md §4.4 path-rewriting policy): the
	// restored root-output must contain the RESTORING host's absolute
	// target dir, never the saving host's path or a bare relative path.
	gotSynth, err := os.ReadFile(filepath.Join(targetDir, "debug", "build/serde/root-output"))
	if err != nil {
		t.Fatalf("reading synthesized file: %v", err)
	}
	want := "path=" + targetDir + "/out"
	if string(gotSynth) != want {
		t.Fatalf("root-output not rewritten to restoring host's path: got %q want %q", gotSynth, want)
	}
	if bytes.Contains(gotSynth, []byte(unit.Placeholder)) {
		t.Fatalf("placeholder leaked into restored root-output")
	}
}

func TestRestoreMissWhenNoRegistryCandidate(t *testing.T) {
	engine := newTestEngine(t, map[string][]unit.SavedUnit{}, map[string][]byte{})
	targetDir := t.TempDir()

	plan := unit.UnitPlan{UnitHash: mustDigest("missing"), ResolvedTarget: "x86_64-unknown-linux-gnu"}
	results, err := engine.Restore(context.Background(), "tenant-a", targetDir, "debug", []unit.UnitPlan{plan})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if results[0].Outcome != unit.OutcomeMiss {
		t.Fatalf("expected miss, got %s", results[0].Outcome)
	}
}

func TestRestoreRollsBackPartiallyWrittenFilesOnFailure(t *testing.T) {
	unitHash := mustDigest("unit-2")
	goodContent := []byte("first file ok")
	goodKey := hash.Bytes(goodContent).String()

	su := unit.SavedUnit{
		UnitHash:       unitHash.String(),
		ResolvedTarget: "x86_64-unknown-linux-gnu",
		Files: []unit.FileEntry{
			{RelativePath: "deps/liba.rlib", BlobKey: goodKey, MtimeNS: 1000},
			{RelativePath: "deps/libb.rlib", BlobKey: "missing-blob-key", MtimeNS: 1000},
		},
	}
	stored := map[string][]unit.SavedUnit{unitHash.String(): {su}}
	// Only the first file's blob is present; the second fetch fails.
	blobs := map[string][]byte{goodKey: goodContent}

	engine := newTestEngine(t, stored, blobs)
	targetDir := t.TempDir()

	plan := unit.UnitPlan{UnitHash: unitHash, ResolvedTarget: "x86_64-unknown-linux-gnu"}
	results, err := engine.Restore(context.Background(), "tenant-a", targetDir, "debug", []unit.UnitPlan{plan})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if results[0].Outcome != unit.OutcomeMiss {
		t.Fatalf("expected miss after rollback, got %s", results[0].Outcome)
	}
	if _, err := os.Stat(filepath.Join(targetDir, "debug", "deps/liba.rlib")); !os.IsNotExist(err) {
		t.Fatalf("expected the first file's write to be rolled back, got err=%v", err)
	}
}
