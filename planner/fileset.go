package planner

import (
	"path"
	"strings"

	"github.com/darinkishore/hurry/unit"
)

// stem derives the deps/ artifact stem from the package name and the
// builder's extra-filename suffix (spec.md §4.2 File-set enumeration).
// Cargo-style package names use '-' on disk but the convention inside
// deps/ substitutes '_'; the planner follows the same substitution so its
// enumerated paths match what the builder actually writes.
func stem(mu ManifestUnit) string {
	name := strings.ReplaceAll(mu.PackageName, "-", "_")
	return name + mu.ExtraFilename
}

// expectedFiles enumerates the deps/ artifact(s) and, for a library crate,
// its dependency-list sidecar file (spec.md §4.2).
func expectedFiles(mu ManifestUnit, class unit.Classification) []string {
	s := stem(mu)
	switch class {
	case unit.ClassLibraryCrate:
		return []string{
			path.Join("deps", "lib"+s+".rlib"),
			path.Join("deps", s+".d"),
		}
	case unit.ClassHelperProgramBinary:
		return []string{
			path.Join("build", s, s+"-helper"),
		}
	case unit.ClassHelperProgramExec:
		return []string{
			path.Join("build", s, "output"),
		}
	default:
		return nil
	}
}

// expectedSentinels enumerates the .fingerprint/ sentinel directory
// contents whose mtimes the builder checks for freshness (spec.md §4.1,
// §4.2).
func expectedSentinels(mu ManifestUnit) []string {
	s := stem(mu)
	dir := path.Join(".fingerprint", s)
	return []string{
		path.Join(dir, "lib-"+s+".json"),
		path.Join(dir, "lib-"+s),
	}
}

// expectedSynthesized enumerates auxiliary files whose content must be
// rewritten per restoring host (spec.md §4.1, §4.4). Only helper-program
// executions produce a root-output file; everything else has none.
func expectedSynthesized(mu ManifestUnit, class unit.Classification) []unit.SynthesizedTemplate {
	if class != unit.ClassHelperProgramExec {
		return nil
	}
	s := stem(mu)
	return []unit.SynthesizedTemplate{
		{
			RelativePath: path.Join("build", s, "root-output"),
			Kind:         unit.KindRootOutput,
		},
	}
}
