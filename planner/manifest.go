// Package planner turns the builder's dry-run manifest into the ordered
// list of UnitPlans the rest of the core operates on (spec.md §4.2).
package planner

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/darinkishore/hurry/cmn"
)

// ProfileParams is the subset of the builder's compilation profile that
// participates in unit identity (spec.md §4.2 "profile parameters").
type ProfileParams struct {
	OptLevel        string `json:"opt_level"`
	DebugInfoLevel  string `json:"debug_info_level"`
	DebugAssertions bool   `json:"debug_assertions"`
	OverflowChecks  bool   `json:"overflow_checks"`
	Test            bool   `json:"test"`
}

// HelperProgram describes a unit's associated build-time helper program, if
// it has one (spec.md §4.1 `build/` directory).
type HelperProgram struct {
	BinaryStem string `json:"binary_stem"`
}

// ManifestUnit is one compilation unit as described by the builder's dry-run
// output.
type ManifestUnit struct {
	ID              string        `json:"id"` // builder-local identity, for DependencyIDs only; not part of unit_hash
	PackageName     string        `json:"package_name"`
	PackageVersion  string        `json:"package_version"`
	TargetTriple    string        `json:"target_triple"`
	Profile         ProfileParams `json:"profile"`
	Features        []string      `json:"features"`
	Edition         string        `json:"edition"`
	ExtraFilename   string        `json:"extra_filename"`
	DependencyIDs   []string      `json:"dependency_ids"`
	Helper          *HelperProgram `json:"helper,omitempty"`
	IsProcMacro     bool          `json:"is_proc_macro"`
	IsBuildScriptRun bool         `json:"is_build_script_run"`

	// HasNativeDependency reports whether this unit links a native (system
	// or build-script-provided) library, as opposed to being a pure
	// bytecode/rlib artifact (spec.md §4.2 host_libc presence rule). Cargo
	// surfaces this as the package's `links` key plus any
	// `cargo:rustc-link-lib`/`cargo:rustc-link-search` emitted by its build
	// script; the dry-run manifest is expected to resolve that down to this
	// one boolean.
	HasNativeDependency bool `json:"has_native_dependency"`
}

// Manifest is the builder's full dry-run description of a build (spec.md
// §4.2 Inputs).
type Manifest struct {
	Units []ManifestUnit `json:"units"`
}

// DecodeManifest parses the builder's dry-run JSON output. A malformed
// manifest is a *cmn.PlannerError (spec.md §4.2 Failure modes).
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := jsoniter.NewDecoder(r).Decode(&m); err != nil {
		return nil, &cmn.PlannerError{Reason: "malformed dry-run manifest: " + err.Error()}
	}
	if len(m.Units) == 0 {
		return nil, &cmn.PlannerError{Reason: "dry-run manifest declares no units"}
	}
	seen := make(map[string]bool, len(m.Units))
	for _, u := range m.Units {
		if u.ID == "" {
			return nil, &cmn.PlannerError{Reason: "unit missing id"}
		}
		if seen[u.ID] {
			return nil, &cmn.PlannerError{Reason: "duplicate unit id " + u.ID}
		}
		seen[u.ID] = true
		if u.TargetTriple == "" {
			return nil, &cmn.PlannerError{Reason: "unit " + u.ID + " has no target triple"}
		}
	}
	for _, u := range m.Units {
		for _, dep := range u.DependencyIDs {
			if !seen[dep] {
				return nil, &cmn.PlannerError{Reason: "unit " + u.ID + " depends on unknown id " + dep}
			}
		}
	}
	return &m, nil
}
