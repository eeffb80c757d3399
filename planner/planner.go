package planner

import (
	"sort"
	"strings"

	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hash"
	"github.com/darinkishore/hurry/unit"
)

// HostFacts describes the host the planner is running on (spec.md §4.2
// Inputs: "host facts").
type HostFacts struct {
	TargetTriple string
	LibcFamily   string // empty if undetermined/not applicable
	LibcVersion  string
}

// libcFamilies is the set of target-triple substrings the planner
// recognises as libc-sensitive (spec.md §4.2 host_libc presence rule).
var libcFamilies = []string{"gnu", "musl"}

// Plan computes the ordered list of UnitPlans for m, given host (spec.md
// §4.2). Units are processed in dependency order so that a unit's
// dependencies' unit_hashes are always already computed by the time the
// unit itself is hashed.
func Plan(m *Manifest, host HostFacts) ([]unit.UnitPlan, error) {
	order, err := topoSort(m.Units)
	if err != nil {
		return nil, err
	}

	hashByID := make(map[string]hash.Digest, len(m.Units))
	byID := make(map[string]ManifestUnit, len(m.Units))
	for _, u := range m.Units {
		byID[u.ID] = u
	}

	seenHashes := make(map[hash.Digest]string, len(m.Units))
	plans := make([]unit.UnitPlan, 0, len(m.Units))

	for _, id := range order {
		mu := byID[id]

		depHashes := make([]hash.Digest, 0, len(mu.DependencyIDs))
		for _, dep := range mu.DependencyIDs {
			depHashes = append(depHashes, hashByID[dep])
		}
		sort.Slice(depHashes, func(i, j int) bool {
			return depHashes[i].String() < depHashes[j].String()
		})

		uh := unitHash(mu, depHashes)
		if other, dup := seenHashes[uh]; dup {
			return nil, &cmn.PlannerError{Reason: "unit_hash collision between " + other + " and " + mu.ID}
		}
		seenHashes[uh] = mu.ID
		hashByID[mu.ID] = uh

		classification := classify(mu)
		libc := classifyLibc(mu, classification, host)

		plans = append(plans, unit.UnitPlan{
			UnitHash:            uh,
			ResolvedTarget:      mu.TargetTriple,
			HostLibc:            libc,
			Classification:      classification,
			ExpectedFiles:       expectedFiles(mu, classification),
			ExpectedSentinels:   expectedSentinels(mu),
			ExpectedSynthesized: expectedSynthesized(mu, classification),
			DependencyHashes:    depHashes,
			PackageName:         mu.PackageName,
			PackageVersion:      mu.PackageVersion,
		})
	}
	return plans, nil
}

// unitHash is the single call site computing unit_hash, routed through
// hash.Record per spec.md §9's centralization requirement.
func unitHash(mu ManifestUnit, depHashes []hash.Digest) hash.Digest {
	features := append([]string(nil), mu.Features...)
	extra := ""
	if mu.Helper != nil {
		extra = mu.Helper.BinaryStem
	}
	return hash.NewRecord().
		WithString(mu.PackageName).
		WithString(mu.PackageVersion).
		WithString(mu.TargetTriple).
		WithString(mu.Profile.OptLevel).
		WithString(mu.Profile.DebugInfoLevel).
		WithBool(mu.Profile.DebugAssertions).
		WithBool(mu.Profile.OverflowChecks).
		WithBool(mu.Profile.Test).
		WithSortedStrings(features).
		WithString(mu.Edition).
		WithString(mu.ExtraFilename). // consistency check only, per spec.md §4.2
		WithString(extra).
		WithDigests(depHashes).
		Sum()
}

func classify(mu ManifestUnit) unit.Classification {
	switch {
	case mu.Helper != nil && mu.IsBuildScriptRun:
		return unit.ClassHelperProgramExec
	case mu.Helper != nil:
		return unit.ClassHelperProgramBinary
	default:
		return unit.ClassLibraryCrate
	}
}

// classifyLibc determines host_libc presence (spec.md §4.2: "present iff
// the unit's target family matches a known-libc family and the unit is not
// a pure bytecode/rlib artifact"). Proc-macros run on the host toolchain,
// not the target, and are never libc-sensitive for cross-compilation
// purposes. A library-crate with no native dependency is exactly the "pure
// rlib" case the spec excludes; helper-program units (binaries and their
// executions) always link against the host C runtime and stay sensitive
// regardless of HasNativeDependency.
func classifyLibc(mu ManifestUnit, classification unit.Classification, host HostFacts) *unit.HostLibc {
	if mu.IsProcMacro {
		return nil
	}
	if classification == unit.ClassLibraryCrate && !mu.HasNativeDependency {
		return nil
	}
	if host.LibcFamily == "" {
		return nil
	}
	lower := strings.ToLower(mu.TargetTriple)
	for _, fam := range libcFamilies {
		if strings.Contains(lower, fam) {
			return &unit.HostLibc{Family: host.LibcFamily, Version: host.LibcVersion}
		}
	}
	return nil
}

// topoSort orders units so every dependency precedes its dependents,
// failing with *cmn.PlannerError on a dependency cycle (which the dry-run
// manifest should never produce, but the planner cannot trust its input
// blindly — spec.md §4.2 Failure modes).
func topoSort(units []ManifestUnit) ([]string, error) {
	byID := make(map[string]ManifestUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(units))
	order := make([]string, 0, len(units))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return &cmn.PlannerError{Reason: "dependency cycle involving unit " + id}
		}
		color[id] = gray
		for _, dep := range byID[id].DependencyIDs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, u := range units {
		if err := visit(u.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}
