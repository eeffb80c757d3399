package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/darinkishore/hurry/hlog"
	"github.com/darinkishore/hurry/restore"
	"github.com/darinkishore/hurry/session"
	"github.com/darinkishore/hurry/unit"
)

var buildLogger = hlog.Tag("build")

var buildCommand = cli.Command{
	Name:      "build",
	Usage:     "run a builder invocation through the unit cache",
	ArgsUsage: "-- <builder> [args...]",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "cache-skip-restore", Usage: "do not restore cached units before building"},
		cli.BoolFlag{Name: "cache-skip-save", Usage: "do not save units after building"},
		cli.BoolFlag{Name: "cache-wait-for-upload", Usage: "has no effect: units are handed to the background uploader and this process exits without waiting for their upload"},
		cli.StringFlag{Name: "cache-endpoint", Usage: "override HURRY_API_URL for this invocation"},
		cli.BoolFlag{Name: "cache-dry-run", Usage: "plan and report hit/miss counts without touching the target directory"},
		cli.StringFlag{Name: "target-dir", Usage: "absolute path to the builder's target directory", Value: "target"},
		cli.StringFlag{Name: "profile", Usage: "profile subdirectory under target-dir", Value: "debug"},
		cli.StringFlag{Name: "manifest", Usage: "path to a pre-computed dry-run manifest; defaults to invoking the builder with --build-plan"},
		cli.BoolFlag{Name: "verbose", Usage: "show a restore progress bar; the console otherwise stays quiet until the final summary line"},
	},
	Action: runBuild,
}

func runBuild(c *cli.Context) error {
	args := []string(c.Args())
	if len(args) == 0 {
		return cli.NewExitError("hurry build: missing builder invocation after --", 2)
	}
	builder, builderArgs := args[0], args[1:]

	targetDirAbs, err := filepath.Abs(c.String("target-dir"))
	if err != nil {
		return fmt.Errorf("resolving target-dir: %w", err)
	}
	profileDir := c.String("profile")

	cr, err := newCore(c.String("cache-endpoint"))
	if err != nil {
		buildLogger.Warningf("cache unavailable, falling back to a plain build: %v", err)
		return runBuilderPassthrough(builder, builderArgs)
	}

	ctx := context.Background()
	sess := &session.Session{
		Registry:  cr.registry,
		CAS:       cr.cas,
		Submitter: cr.uploader,
		Host:      cr.host,
		Tenant:    cr.tenant,
	}

	manifest, err := loadManifest(builder, builderArgs, c.String("manifest"))
	if err != nil {
		buildLogger.Warningf("plan failed, falling back to a plain build: %v", err)
		return runBuilderPassthrough(builder, builderArgs)
	}

	plans, err := sess.Plan(bytes.NewReader(manifest))
	if err != nil {
		buildLogger.Warningf("plan failed, falling back to a plain build: %v", err)
		return runBuilderPassthrough(builder, builderArgs)
	}

	if c.Bool("cache-dry-run") {
		return dryRunReport(ctx, sess, plans)
	}

	if c.Bool("cache-skip-restore") {
		if err := runBuilderPassthrough(builder, builderArgs); err != nil {
			return err
		}
		if c.Bool("cache-skip-save") {
			return nil
		}
		misses := make([]restore.Result, len(plans))
		for i, p := range plans {
			misses[i] = restore.Result{Plan: p, Outcome: unit.OutcomeMiss}
		}
		saved, skipped, err := sess.Save(ctx, targetDirAbs, profileDir, misses, nil)
		if err != nil {
			buildLogger.Warningf("save failed: %v", err)
		}
		printSummary(0, saved, skipped)
		return nil
	}

	verbose := c.Bool("verbose")

	restoreResults, lock, err := sess.Restore(ctx, targetDirAbs, profileDir, plans)
	if err != nil {
		buildLogger.Warningf("restore failed, continuing without cache: %v", err)
		return runBuilderPassthrough(builder, builderArgs)
	}
	hits, misses := session.Summarize(restoreResults)
	reportProgress(hits, misses, verbose)

	if err := runBuilderPassthrough(builder, builderArgs); err != nil {
		lock.Unlock()
		return err
	}

	if c.Bool("cache-skip-save") {
		lock.Unlock()
		printSummary(hits, 0, 0)
		return nil
	}

	saved, skipped, err := sess.Save(ctx, targetDirAbs, profileDir, restoreResults, lock)
	if err != nil {
		buildLogger.Warningf("save failed: %v", err)
	}
	printSummary(hits, saved, skipped)

	// --cache-wait-for-upload has no effect: Save hands missed units to the
	// Submitter, which posts each one to the background worker's queue, and
	// this process returns without waiting for the worker to upload them.
	return nil
}

// printSummary emits the one console line a build leaves behind (spec.md §7
// "User-visible behaviour": the console stays quiet otherwise, with detail
// going to the log instead).
func printSummary(restored, saved, skipped int) {
	fmt.Printf("restored %d units, saved %d units, %d skipped (see log)\n", restored, saved, skipped)
}

func runBuilderPassthrough(builder string, args []string) error {
	cmd := exec.Command(builder, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	return nil
}

// loadManifest obtains the builder's dry-run unit manifest: from an
// explicit --manifest file if given, otherwise by invoking the builder
// with its build-plan flag (spec.md §4.2 Inputs).
func loadManifest(builder string, builderArgs []string, manifestPath string) ([]byte, error) {
	if manifestPath != "" {
		return os.ReadFile(manifestPath)
	}
	cmd := exec.Command(builder, append(append([]string{}, builderArgs...), "--build-plan", "-Zunstable-options")...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("invoking %s for a dry-run manifest: %w", builder, err)
	}
	return out.Bytes(), nil
}

// reportProgress logs the restore hit/miss split and, when verbose, renders
// an mpb progress bar for it. The console otherwise stays quiet until
// printSummary's single closing line (spec.md §7).
func reportProgress(hits, misses int, verbose bool) {
	buildLogger.Infof("restore: %d hit, %d miss", hits, misses)

	total := hits + misses
	if !verbose || total == 0 {
		return
	}
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("restore", decor.WC{W: len("restore") + 2, C: decor.DSyncWidthR}),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)),
	)
	bar.IncrBy(total)
	p.Wait()
}

func dryRunReport(ctx context.Context, sess *session.Session, plans []unit.UnitPlan) error {
	hits := 0
	for _, p := range plans {
		if _, ok, err := sess.Registry.Lookup(ctx, sess.Tenant, p.UnitHash.String(), p.ResolvedTarget); err == nil && ok {
			hits++
		}
	}
	fmt.Printf("%d units planned: %d would be restored, %d would miss\n", len(plans), hits, len(plans)-hits)
	return nil
}
