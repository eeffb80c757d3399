package save_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/darinkishore/hurry/hash"
	"github.com/darinkishore/hurry/save"
	"github.com/darinkishore/hurry/unit"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	units []unit.SavedUnit
	blobs []map[string][]byte
}

func (f *fakeSubmitter) Submit(tenant string, su unit.SavedUnit, blobs map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units = append(f.units, su)
	f.blobs = append(f.blobs, blobs)
}

func writeFile(t *testing.T, dir, rel, content string, mtimeNS int64) {
	t.Helper()
	abs := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSaveCapturesMissedUnit(t *testing.T) {
	targetDir := t.TempDir()
	writeFile(t, targetDir, "debug/deps/libfoo.rlib", "compiled bytes", 0)
	writeFile(t, targetDir, "debug/.fingerprint/foo/lib-foo", "", 0)

	plan := unit.UnitPlan{
		UnitHash:          hash.Bytes([]byte("foo")),
		ResolvedTarget:    "x86_64-unknown-linux-gnu",
		ExpectedFiles:     []string{"deps/libfoo.rlib"},
		ExpectedSentinels: []string{".fingerprint/foo/lib-foo"},
	}

	sub := &fakeSubmitter{}
	engine := save.New(sub)
	saved, skipped, err := engine.Save(context.Background(), "tenant-a", targetDir, "debug", []save.Outcome{
		{Plan: plan, Hit: false},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved != 1 || skipped != 0 {
		t.Fatalf("expected 1 saved, 0 skipped, got saved=%d skipped=%d", saved, skipped)
	}
	if len(sub.units) != 1 {
		t.Fatalf("expected 1 submitted unit, got %d", len(sub.units))
	}
	got := sub.units[0]
	if len(got.Files) != 1 || got.Files[0].RelativePath != "deps/libfoo.rlib" {
		t.Fatalf("unexpected captured files: %+v", got.Files)
	}
	if len(got.Sentinels) != 1 {
		t.Fatalf("expected sentinel captured")
	}
}

func TestSaveSkipsHitUnitWithUnchangedFiles(t *testing.T) {
	targetDir := t.TempDir()
	abs := filepath.Join(targetDir, "debug", "deps/libfoo.rlib")
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	plan := unit.UnitPlan{UnitHash: hash.Bytes([]byte("foo")), ExpectedFiles: []string{"deps/libfoo.rlib"}}
	restored := unit.SavedUnit{
		Files: []unit.FileEntry{{RelativePath: "deps/libfoo.rlib", MtimeNS: info.ModTime().UnixNano()}},
	}

	sub := &fakeSubmitter{}
	engine := save.New(sub)
	saved, skipped, err := engine.Save(context.Background(), "tenant-a", targetDir, "debug", []save.Outcome{
		{Plan: plan, Hit: true, Restored: restored},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved != 0 || skipped != 0 {
		t.Fatalf("expected nothing captured for an unchanged hit, got saved=%d skipped=%d", saved, skipped)
	}
	if len(sub.units) != 0 {
		t.Fatalf("expected no submission for unchanged hit, got %d", len(sub.units))
	}
}

func TestSaveCountsSkippedUnitWithMissingFile(t *testing.T) {
	targetDir := t.TempDir()

	plan := unit.UnitPlan{
		UnitHash:      hash.Bytes([]byte("foo")),
		ExpectedFiles: []string{"deps/libfoo.rlib"}, // never written
	}

	sub := &fakeSubmitter{}
	engine := save.New(sub)
	saved, skipped, err := engine.Save(context.Background(), "tenant-a", targetDir, "debug", []save.Outcome{
		{Plan: plan, Hit: false},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved != 0 || skipped != 1 {
		t.Fatalf("expected 0 saved, 1 skipped, got saved=%d skipped=%d", saved, skipped)
	}
	if len(sub.units) != 0 {
		t.Fatalf("expected no submission for a unit missing its expected file, got %d", len(sub.units))
	}
}

func TestSaveReverseSubstitutesRootOutput(t *testing.T) {
	targetDir := t.TempDir()
	content := "out_dir=" + targetDir + "/build/foo/out"
	writeFile(t, targetDir, "debug/build/foo/root-output", content, 0)

	plan := unit.UnitPlan{
		UnitHash: hash.Bytes([]byte("foo")),
		ExpectedSynthesized: []unit.SynthesizedTemplate{
			{RelativePath: "build/foo/root-output", Kind: unit.KindRootOutput},
		},
	}

	sub := &fakeSubmitter{}
	engine := save.New(sub)
	if _, _, err := engine.Save(context.Background(), "tenant-a", targetDir, "debug", []save.Outcome{
		{Plan: plan, Hit: false},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(sub.units) != 1 || len(sub.units[0].Synthesized) != 1 {
		t.Fatalf("expected synthesized entry captured")
	}
	got := sub.units[0].Synthesized[0].ContentTemplate
	want := "out_dir=" + unit.Placeholder + "/build/foo/out"
	if got != want {
		t.Fatalf("reverse substitution wrong: got %q want %q", got, want)
	}
}
