// Package save captures build output for units the restore engine missed
// (or that changed during the build) and hands the result to the uploader
// without blocking (spec.md §4.5).
package save

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hash"
	"github.com/darinkishore/hurry/hlog"
	"github.com/darinkishore/hurry/targetfs"
	"github.com/darinkishore/hurry/unit"
)

var logger = hlog.Tag("save")

// Submitter hands a captured SavedUnit off for durable registration without
// the save engine waiting on network I/O (spec.md §4.5 step 5). The
// uploader package implements this; save depends only on the interface to
// avoid a cycle.
type Submitter interface {
	Submit(tenant string, su unit.SavedUnit, blobs map[string][]byte)
}

// Engine captures post-build artifacts (spec.md §4.5).
type Engine struct {
	Submitter Submitter
	PoolSize  int
}

func New(sub Submitter) *Engine {
	return &Engine{Submitter: sub, PoolSize: defaultPoolSize()}
}

func defaultPoolSize() int {
	n := runtime.NumCPU()
	if n > cmn.DefaultSavePoolSize {
		return cmn.DefaultSavePoolSize
	}
	if n < 1 {
		return 1
	}
	return n
}

// Outcome is the restore engine's per-unit result, the minimal shape save
// needs (avoids an import cycle with the restore package).
type Outcome struct {
	Plan     unit.UnitPlan
	Hit      bool
	Restored unit.SavedUnit
}

// Save walks every UnitPlan that was a miss (or needs re-capture) and
// submits a SavedUnit for each one it can fully capture. targetDirAbs and
// profileDir locate the builder's output; tenant scopes the submission.
// Returns the count actually submitted and the count skipped (an expected
// file was missing, unreadable, or otherwise uncapturable — logged as a
// warning at the point of skip), for the CLI's summary line.
func (e *Engine) Save(ctx context.Context, tenant, targetDirAbs, profileDir string, outcomes []Outcome) (saved, skipped int, err error) {
	sem := semaphore.NewWeighted(int64(e.PoolSize))
	group, gctx := errgroup.WithContext(ctx)

	var savedCount, skippedCount int64
	for _, o := range outcomes {
		o := o
		if !e.needsCapture(targetDirAbs, profileDir, o) {
			continue
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			return int(savedCount), int(skippedCount), err
		}
		group.Go(func() error {
			defer sem.Release(1)
			if e.captureOne(targetDirAbs, profileDir, tenant, o) {
				atomic.AddInt64(&savedCount, 1)
			} else {
				atomic.AddInt64(&skippedCount, 1)
			}
			return nil
		})
	}
	err = group.Wait()
	return int(savedCount), int(skippedCount), err
}

// needsCapture reports whether the plan's unit was a miss, or was restored
// but now differs on disk from what was restored (spec.md §4.5 "Post-build
// capture").
func (e *Engine) needsCapture(targetDirAbs, profileDir string, o Outcome) bool {
	if !o.Hit {
		return true
	}
	for _, f := range o.Restored.Files {
		abs, err := targetfs.Join(targetDirAbs, profileDir, f.RelativePath)
		if err != nil {
			return true
		}
		info, err := targetfs.Stat(abs)
		if err != nil || info.ModTime().UnixNano() != f.MtimeNS {
			return true
		}
	}
	return false
}

// captureOne captures and submits a single unit's output, reporting whether
// it actually submitted (false means it was skipped, with the reason
// already logged as a warning).
func (e *Engine) captureOne(targetDirAbs, profileDir, tenant string, o Outcome) bool {
	p := o.Plan
	su := unit.SavedUnit{
		UnitHash:       p.UnitHash.String(),
		ResolvedTarget: p.ResolvedTarget,
		HostLibc:       p.HostLibc,
	}
	blobs := make(map[string][]byte, len(p.ExpectedFiles))

	for _, rel := range p.ExpectedFiles {
		abs, err := targetfs.Join(targetDirAbs, profileDir, rel)
		if err != nil {
			logger.Warningf("skip unit %s: %v", p.UnitHash, err)
			return false
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			logger.Warningf("skip unit %s: expected file %s missing: %v", p.UnitHash, rel, err)
			return false
		}
		info, err := targetfs.Stat(abs)
		if err != nil {
			logger.Warningf("skip unit %s: stat %s: %v", p.UnitHash, rel, err)
			return false
		}
		key := hash.Bytes(data).String()
		blobs[key] = data
		su.Files = append(su.Files, unit.FileEntry{
			RelativePath:  rel,
			BlobKey:       key,
			MtimeNS:       info.ModTime().UnixNano(),
			ExecutableBit: info.Mode()&0o111 != 0,
		})
	}

	for _, rel := range p.ExpectedSentinels {
		abs, err := targetfs.Join(targetDirAbs, profileDir, rel)
		if err != nil {
			logger.Warningf("skip unit %s: %v", p.UnitHash, err)
			return false
		}
		info, err := targetfs.Stat(abs)
		if err != nil {
			// Sentinels are best-effort: a missing one just means the
			// builder didn't judge this unit fresh enough to write it.
			continue
		}
		su.Sentinels = append(su.Sentinels, unit.SentinelEntry{
			RelativePath: rel,
			MtimeNS:      info.ModTime().UnixNano(),
		})
	}

	for _, tmpl := range p.ExpectedSynthesized {
		abs, err := targetfs.Join(targetDirAbs, profileDir, tmpl.RelativePath)
		if err != nil {
			logger.Warningf("skip unit %s: %v", p.UnitHash, err)
			return false
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			logger.Warningf("skip unit %s: expected synthesized file %s missing: %v", p.UnitHash, tmpl.RelativePath, err)
			return false
		}
		info, err := targetfs.Stat(abs)
		if err != nil {
			logger.Warningf("skip unit %s: stat %s: %v", p.UnitHash, tmpl.RelativePath, err)
			return false
		}
		template, err := reverseSubstitute(string(data), targetDirAbs, tmpl.Kind)
		if err != nil {
			logger.Warningf("skip unit %s: %v", p.UnitHash, err)
			return false
		}
		su.Synthesized = append(su.Synthesized, unit.SynthesizedEntry{
			RelativePath:    tmpl.RelativePath,
			ContentTemplate: template,
			MtimeNS:         info.ModTime().UnixNano(),
		})
	}

	e.Submitter.Submit(tenant, su, blobs)
	return true
}

// reverseSubstitute extracts a content template from materialized content by
// replacing the current target directory's absolute path with
// unit.Placeholder (spec.md §4.5 step 3). Only root-output is known to
// contain the saving host's absolute path at all; other synthesized kinds
// are stored byte-for-byte, content_template equal to content.
func reverseSubstitute(content, targetDirAbs string, kind unit.SynthesizedKind) (string, error) {
	if kind != unit.KindRootOutput {
		return content, nil
	}
	if !strings.Contains(content, targetDirAbs) {
		return "", errMissingAbsPath(targetDirAbs)
	}
	return strings.ReplaceAll(content, targetDirAbs, unit.Placeholder), nil
}

type missingAbsPathError struct{ dir string }

func (e *missingAbsPathError) Error() string {
	return "synthesized file does not contain expected target directory " + e.dir
}

func errMissingAbsPath(dir string) error { return &missingAbsPathError{dir: dir} }
