// Package unit defines the data model shared by every layer of the core:
// SavedUnit, its constituent entries, the planner's UnitPlan, and the
// per-invocation BuildSession (spec.md §3).
package unit

import "github.com/darinkishore/hurry/hash"

// HostLibc records a unit's dependency on the build host's C library
// (spec.md §3 SavedUnit.host_libc). Absent (nil) for platform-pure units.
type HostLibc struct {
	Family  string `json:"family"`
	Version string `json:"version"` // dotted numeric, compared component-wise
}

// FileEntry is one compiled artifact within a SavedUnit.
type FileEntry struct {
	RelativePath  string `json:"relative_path"` // forward slashes on the wire
	BlobKey       string `json:"blob_key"`       // hex hash; empty in a UnitPlan
	MtimeNS       int64  `json:"mtime_ns_since_epoch"`
	ExecutableBit bool   `json:"executable_bit"`
}

// SentinelEntry is an empty marker file whose mtime conveys freshness to the
// builder (spec.md §3 SentinelEntry, §4.1).
type SentinelEntry struct {
	RelativePath string `json:"relative_path"`
	MtimeNS      int64  `json:"mtime_ns_since_epoch"`
}

// SynthesizedEntry is an auxiliary file whose content is computed at restore
// time from a template plus the restoring host's target directory path
// (spec.md §3 SynthesizedEntry, §4.4 path-rewriting policy). Content is
// never stored in CAS.
type SynthesizedEntry struct {
	RelativePath    string `json:"relative_path"`
	ContentTemplate string `json:"content_template"` // contains the Placeholder
	MtimeNS         int64  `json:"mtime_ns_since_epoch"`
}

// Placeholder is substituted, at restore time, with the restoring host's
// absolute target directory path. It must never appear verbatim in restored
// output (spec.md §4.4, Scenario B).
const Placeholder = "\x00HURRY_TARGET_DIR\x00"

// SavedUnit is the registry's durable record for one compilation unit
// (spec.md §3).
type SavedUnit struct {
	UnitHash       string             `json:"unit_hash"`
	ResolvedTarget string             `json:"resolved_target"`
	HostLibc       *HostLibc          `json:"host_libc,omitempty"`
	Files          []FileEntry        `json:"files"`
	Sentinels      []SentinelEntry    `json:"sentinels"`
	Synthesized    []SynthesizedEntry `json:"synthesized"`

	// CreatedAtNS breaks ties between usable candidates whose host_libc
	// versions are equal (spec.md §4.3: "most recent creation time"). It is
	// tagged json:"-", so it is neither sent to nor decoded from the
	// registry's JSON or the local cache: candidates read from either carry
	// zero here, and among tied candidates the first in the list is kept.
	CreatedAtNS int64 `json:"-"`
}

// Classification is the planner's tag for a unit (spec.md §4.2).
type Classification string

const (
	ClassLibraryCrate        Classification = "library-crate"
	ClassHelperProgramBinary Classification = "helper-program-binary"
	ClassHelperProgramExec   Classification = "helper-program-execution"
)

// UnitPlan is the planner's output for one unit: everything a SavedUnit
// carries except blob_key values, which are resolved from the registry
// (spec.md §3).
type UnitPlan struct {
	UnitHash       hash.Digest
	ResolvedTarget string
	HostLibc       *HostLibc
	Classification Classification

	// ExpectedFiles/ExpectedSentinels/ExpectedSynthesized are the
	// relative-path enumeration the planner computed (spec.md §4.2
	// "File-set enumeration"); blob keys and content are not yet known.
	ExpectedFiles       []string
	ExpectedSentinels   []string
	ExpectedSynthesized []SynthesizedTemplate

	// DependencyHashes are the unit_hashes of this unit's direct
	// dependencies, sorted by their hex rendering — the same order that was
	// hashed into UnitHash (spec.md §4.2).
	DependencyHashes []hash.Digest

	// PackageName/PackageVersion are carried through for diagnostics and
	// for the save engine's artifact-stem derivation; they are not part of
	// the cache key beyond their contribution to UnitHash.
	PackageName    string
	PackageVersion string
}

// SynthesizedTemplate is the planner's static knowledge of a synthesized
// file's relative path and template shape, before a SavedUnit exists to
// supply (or a build to produce) its content.
type SynthesizedTemplate struct {
	RelativePath string
	Kind         SynthesizedKind
}

type SynthesizedKind string

const (
	// KindRootOutput is the `root-output` file written by a helper program
	// that declares the absolute path of its `out/` directory (spec.md
	// §4.1, §4.4). It is the one synthesized kind the core knows how to
	// both save (reverse substitution) and restore (forward substitution).
	KindRootOutput SynthesizedKind = "root-output"
)

// Outcome records what the restore engine did with one UnitPlan.
type Outcome string

const (
	OutcomeHit  Outcome = "hit"
	OutcomeMiss Outcome = "miss"
)

// BuildSession is process-local state for one wrapper invocation (spec.md
// §3). It lives only for the duration of one `hurry build`.
type BuildSession struct {
	TargetDir    string // absolute
	ProfileDir   string // e.g. "debug", relative to TargetDir
	Tenant       string
	Plans        []UnitPlan
	Outcomes     map[hash.Digest]Outcome
	RestoredKeys map[hash.Digest]SavedUnit // what restore actually materialized, for save's diff
}

func NewBuildSession(targetDir, profileDir, tenant string) *BuildSession {
	return &BuildSession{
		TargetDir:    targetDir,
		ProfileDir:   profileDir,
		Tenant:       tenant,
		Outcomes:     make(map[hash.Digest]Outcome),
		RestoredKeys: make(map[hash.Digest]SavedUnit),
	}
}
