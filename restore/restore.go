// Package restore materialises UnitPlans from cache into a target directory
// (spec.md §4.4), dispatching one task per UnitPlan onto a bounded worker
// pool the way the teacher's fs.WalkBck dispatches one goroutine per
// mountpath: golang.org/x/sync/errgroup for the pool, a semaphore for the
// bound.
package restore

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/darinkishore/hurry/cas"
	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hash"
	"github.com/darinkishore/hurry/hlog"
	"github.com/darinkishore/hurry/registry"
	"github.com/darinkishore/hurry/targetfs"
	"github.com/darinkishore/hurry/unit"
)

var logger = hlog.Tag("restore")

// Engine wires the registry and CAS clients the restore algorithm needs
// (spec.md §4.4).
type Engine struct {
	Registry *registry.Registry
	CAS      *cas.CAS
	PoolSize int
}

func New(reg *registry.Registry, c *cas.CAS) *Engine {
	return &Engine{Registry: reg, CAS: c, PoolSize: defaultPoolSize()}
}

func defaultPoolSize() int {
	n := runtime.NumCPU()
	if n > cmn.DefaultRestorePoolSize {
		return cmn.DefaultRestorePoolSize
	}
	if n < 1 {
		return 1
	}
	return n
}

// Result is the outcome of restoring one UnitPlan, and for a "hit" the
// SavedUnit that was actually materialized — the save engine's diff base
// (spec.md §4.4 "Output").
type Result struct {
	Plan     unit.UnitPlan
	Outcome  unit.Outcome
	Restored unit.SavedUnit
}

// Restore runs the top-level algorithm of spec.md §4.4 over every plan,
// bounded by e.PoolSize concurrent units. A single unit's failure never
// aborts the others; it is simply recorded as a miss.
func (e *Engine) Restore(ctx context.Context, tenant, targetDirAbs, profileDir string, plans []unit.UnitPlan) ([]Result, error) {
	results := make([]Result, len(plans))
	sem := semaphore.NewWeighted(int64(e.PoolSize))
	group, gctx := errgroup.WithContext(ctx)

	for i, p := range plans {
		i, p := i, p
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		group.Go(func() error {
			defer sem.Release(1)
			results[i] = e.restoreOne(gctx, tenant, targetDirAbs, profileDir, p)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) restoreOne(ctx context.Context, tenant, targetDirAbs, profileDir string, p unit.UnitPlan) Result {
	unitHash := p.UnitHash.String()

	su, ok, err := e.Registry.Lookup(ctx, tenant, unitHash, p.ResolvedTarget)
	if err != nil {
		logger.Warningf("registry lookup failed for %s: %v", unitHash, err)
		return Result{Plan: p, Outcome: unit.OutcomeMiss}
	}
	if !ok {
		return Result{Plan: p, Outcome: unit.OutcomeMiss}
	}

	written := make([]string, 0, len(su.Files)+len(su.Sentinels)+len(su.Synthesized))
	if err := e.materialize(ctx, targetDirAbs, profileDir, su, &written); err != nil {
		logger.Warningf("restore of %s failed, rolling back: %v", unitHash, err)
		e.rollback(written)
		return Result{Plan: p, Outcome: unit.OutcomeMiss}
	}
	return Result{Plan: p, Outcome: unit.OutcomeHit, Restored: su}
}

func (e *Engine) materialize(ctx context.Context, targetDirAbs, profileDir string, su unit.SavedUnit, written *[]string) error {
	for _, f := range su.Files {
		abs, err := targetfs.Join(targetDirAbs, profileDir, f.RelativePath)
		if err != nil {
			return err
		}
		if alreadyIdentical(abs, f) {
			continue
		}
		var buf bytes.Buffer
		if err := e.CAS.Get(ctx, f.BlobKey, &buf); err != nil {
			return err
		}
		if err := targetfs.WriteFileAtomic(abs, &buf, f.MtimeNS, f.ExecutableBit); err != nil {
			return err
		}
		*written = append(*written, abs)
	}

	for _, s := range su.Sentinels {
		abs, err := targetfs.Join(targetDirAbs, profileDir, s.RelativePath)
		if err != nil {
			return err
		}
		if err := targetfs.WriteSentinel(abs, s.MtimeNS); err != nil {
			return err
		}
		*written = append(*written, abs)
	}

	for _, y := range su.Synthesized {
		abs, err := targetfs.Join(targetDirAbs, profileDir, y.RelativePath)
		if err != nil {
			return err
		}
		content := renderSynthesized(y.ContentTemplate, targetDirAbs)
		if err := targetfs.WriteSynthesizedAtomic(abs, []byte(content), y.MtimeNS); err != nil {
			return err
		}
		*written = append(*written, abs)
	}
	return nil
}

// renderSynthesized substitutes unit.Placeholder with the restoring host's
// absolute target directory (spec.md §4.4 Path-rewriting policy). The
// root-output file is the one case this module knows how to restore;
// getting this substitution backwards produces the doubled-prefix
// corruption spec.md §4.4 calls out explicitly.
func renderSynthesized(template, targetDirAbs string) string {
	return strings.ReplaceAll(template, unit.Placeholder, targetDirAbs)
}

// alreadyIdentical is the pre-check of spec.md §4.4 step 3f: an existing
// file whose mtime differs is rewritten without being read; one whose mtime
// matches is read back and skipped only if its content hashes to the blob
// key. False negatives just mean an extra rewrite, never a false positive.
func alreadyIdentical(absPath string, f unit.FileEntry) bool {
	info, err := targetfs.Stat(absPath)
	if err != nil || info.ModTime().UnixNano() != f.MtimeNS {
		return false
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return false
	}
	return hash.Bytes(data).String() == f.BlobKey
}

// rollback removes everything materialize wrote for a unit that ultimately
// failed (spec.md §4.4 "Partial failure"). Failures here are logged and
// tolerated, not propagated: leftover files are acceptable since the
// subsequent builder run will overwrite them.
func (e *Engine) rollback(written []string) {
	for _, p := range written {
		if err := targetfs.RemoveFile(p); err != nil {
			logger.Warningf("rollback: failed to remove %s: %v", p, err)
		}
	}
}
