// Package registry implements the metadata registry (spec.md §4.3): the
// durable, tenant-scoped map from unit identity to SavedUnit, split into a
// remote client (authoritative) and a local buntdb-backed fast path
// (SPEC_FULL.md §4, resolving the Open Question in spec.md §9).
package registry

import (
	"strconv"
	"strings"

	"github.com/darinkishore/hurry/unit"
)

// HostFacts describes the restoring host for libc compatibility filtering
// (spec.md §4.3).
type HostFacts struct {
	LibcFamily  string
	LibcVersion string
}

// SelectCandidate picks the SavedUnit usable on host among candidates,
// applying spec.md §4.3's compatibility rule: a candidate is usable iff its
// host_libc is absent, or its family matches and its version is <= the
// host's, breaking ties by most recent creation time. Returns a zero
// SavedUnit and false if no candidate is usable — a miss.
func SelectCandidate(candidates []unit.SavedUnit, host HostFacts) (unit.SavedUnit, bool) {
	var (
		best    unit.SavedUnit
		haveAny bool
	)
	for _, c := range candidates {
		if !usable(c, host) {
			continue
		}
		if !haveAny || better(c, best) {
			best, haveAny = c, true
		}
	}
	return best, haveAny
}

func usable(c unit.SavedUnit, host HostFacts) bool {
	if c.HostLibc == nil {
		return true
	}
	if c.HostLibc.Family != host.LibcFamily {
		return false
	}
	return compareVersions(c.HostLibc.Version, host.LibcVersion) <= 0
}

// better reports whether candidate a should be preferred to the current
// best b: a more specific (present) host_libc beats an absent one only
// when versions both apply; among two present host_libc candidates, the
// greater usable version wins; ties break by most recent creation time.
func better(a, b unit.SavedUnit) bool {
	aHas, bHas := a.HostLibc != nil, b.HostLibc != nil
	switch {
	case aHas && !bHas:
		return true
	case !aHas && bHas:
		return false
	case aHas && bHas:
		if cmp := compareVersions(a.HostLibc.Version, b.HostLibc.Version); cmp != 0 {
			return cmp > 0
		}
	}
	return a.CreatedAtNS > b.CreatedAtNS
}

// compareVersions compares dotted numeric version strings component-wise
// (major, minor, patch, ...), per spec.md §4.3.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
