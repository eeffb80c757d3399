package uploader

import (
	"bytes"
	"testing"

	"github.com/darinkishore/hurry/unit"
)

func TestSubmissionRoundtrip(t *testing.T) {
	su := unit.SavedUnit{
		UnitHash:       "abc123",
		ResolvedTarget: "x86_64-unknown-linux-gnu",
		HostLibc:       &unit.HostLibc{Family: "glibc", Version: "2.31"},
		Files: []unit.FileEntry{
			{RelativePath: "deps/libfoo.rlib", BlobKey: "deadbeef", MtimeNS: 123, ExecutableBit: true},
		},
		Sentinels: []unit.SentinelEntry{
			{RelativePath: ".fingerprint/foo/lib-foo", MtimeNS: 456},
		},
		Synthesized: []unit.SynthesizedEntry{
			{RelativePath: "build/foo/root-output", ContentTemplate: "x" + unit.Placeholder + "y", MtimeNS: 789},
		},
	}
	in := submission{
		Tenant: "tenant-a",
		Unit:   su,
		Blobs:  map[string][]byte{"deadbeef": []byte("compiled bytes")},
	}

	var buf bytes.Buffer
	if err := encodeSubmission(&buf, in); err != nil {
		t.Fatalf("encodeSubmission: %v", err)
	}

	out, err := decodeSubmission(&buf)
	if err != nil {
		t.Fatalf("decodeSubmission: %v", err)
	}

	if out.Tenant != in.Tenant {
		t.Fatalf("tenant mismatch: got %q", out.Tenant)
	}
	if out.Unit.UnitHash != su.UnitHash || out.Unit.ResolvedTarget != su.ResolvedTarget {
		t.Fatalf("unit identity mismatch: %+v", out.Unit)
	}
	if out.Unit.HostLibc == nil || out.Unit.HostLibc.Family != "glibc" {
		t.Fatalf("host_libc mismatch: %+v", out.Unit.HostLibc)
	}
	if len(out.Unit.Files) != 1 || out.Unit.Files[0].BlobKey != "deadbeef" {
		t.Fatalf("files mismatch: %+v", out.Unit.Files)
	}
	if len(out.Unit.Synthesized) != 1 || out.Unit.Synthesized[0].ContentTemplate != su.Synthesized[0].ContentTemplate {
		t.Fatalf("synthesized mismatch: %+v", out.Unit.Synthesized)
	}
	if string(out.Blobs["deadbeef"]) != "compiled bytes" {
		t.Fatalf("blob content mismatch: %q", out.Blobs["deadbeef"])
	}
}

func TestSubmissionRoundtripNilHostLibc(t *testing.T) {
	in := submission{
		Tenant: "tenant-a",
		Unit:   unit.SavedUnit{UnitHash: "h1", ResolvedTarget: "wasm32-unknown-unknown"},
		Blobs:  map[string][]byte{},
	}
	var buf bytes.Buffer
	if err := encodeSubmission(&buf, in); err != nil {
		t.Fatalf("encodeSubmission: %v", err)
	}
	out, err := decodeSubmission(&buf)
	if err != nil {
		t.Fatalf("decodeSubmission: %v", err)
	}
	if out.Unit.HostLibc != nil {
		t.Fatalf("expected nil host_libc, got %+v", out.Unit.HostLibc)
	}
}
