// Package session orchestrates one `hurry build` invocation: plan, restore,
// run the wrapped builder, save, submit (spec.md §5). The target directory
// lock is the one barrier across the whole invocation; everything else is
// per-unit.
package session

import (
	"context"
	"io"
	"time"

	"github.com/darinkishore/hurry/cas"
	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hlog"
	"github.com/darinkishore/hurry/planner"
	"github.com/darinkishore/hurry/registry"
	"github.com/darinkishore/hurry/restore"
	"github.com/darinkishore/hurry/save"
	"github.com/darinkishore/hurry/targetfs"
	"github.com/darinkishore/hurry/unit"
)

var logger = hlog.Tag("session")

// Session wires every component the build wrapper needs for one invocation.
type Session struct {
	Registry  *registry.Registry
	CAS       *cas.CAS
	Submitter save.Submitter
	Host      planner.HostFacts
	Tenant    string
}

// Options controls how much of the pipeline an invocation actually runs
// (spec.md §6 flags, SPEC_FULL.md supplemented --cache-dry-run).
type Options struct {
	SkipRestore bool
	SkipSave    bool
	DryRun      bool
}

// Plan decodes the builder's dry-run manifest and computes UnitPlans
// (spec.md §4.2). A planner failure is fatal to the invocation and the
// caller should fall back to a plain pass-through build (spec.md §4.2
// Failure modes).
func (s *Session) Plan(r io.Reader) ([]unit.UnitPlan, error) {
	m, err := planner.DecodeManifest(r)
	if err != nil {
		return nil, err
	}
	return planner.Plan(m, s.Host)
}

// Restore materialises as many plans as possible from cache under an
// exclusive lock on targetDirAbs (spec.md §5 "Shared-resource policy": one
// invocation per target directory at a time).
func (s *Session) Restore(ctx context.Context, targetDirAbs, profileDir string, plans []unit.UnitPlan) ([]restore.Result, *targetfs.Lock, error) {
	lock, err := waitForLock(lockFilePath(targetDirAbs), cmn.DefaultLockWaitTimeout)
	if err != nil {
		return nil, nil, err
	}

	engine := restore.New(s.Registry, s.CAS)
	results, err := engine.Restore(ctx, s.Tenant, targetDirAbs, profileDir, plans)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return results, lock, nil
}

// Save captures and submits every missed/changed unit, then releases the
// target directory lock acquired by Restore (spec.md §4.5, §5). Returns the
// count actually saved and the count skipped, for the CLI's summary line.
func (s *Session) Save(ctx context.Context, targetDirAbs, profileDir string, results []restore.Result, lock *targetfs.Lock) (saved, skipped int, err error) {
	defer lock.Unlock()

	outcomes := make([]save.Outcome, len(results))
	for i, r := range results {
		outcomes[i] = save.Outcome{
			Plan:     r.Plan,
			Hit:      r.Outcome == unit.OutcomeHit,
			Restored: r.Restored,
		}
	}
	engine := save.New(s.Submitter)
	return engine.Save(ctx, s.Tenant, targetDirAbs, profileDir, outcomes)
}

func lockFilePath(targetDirAbs string) string {
	return targetDirAbs + "/.hurry-lock"
}

// waitForLock retries TryLock until it succeeds or timeout elapses,
// spacing attempts to avoid hammering the filesystem while another
// invocation holds the target directory (spec.md §5 lock contention is
// expected under concurrent builds of the same crate, not exceptional).
func waitForLock(path string, timeout time.Duration) (*targetfs.Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		lock, err := targetfs.TryLock(path)
		if err == nil {
			return lock, nil
		}
		if !cmn.IsLockContention(err) || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Summarize reports hit/miss counts of a restore, for the build command's
// progress report and summary line.
func Summarize(results []restore.Result) (hits, misses int) {
	for _, r := range results {
		if r.Outcome == unit.OutcomeHit {
			hits++
		} else {
			misses++
		}
	}
	return
}
