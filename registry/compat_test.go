package registry_test

import (
	"testing"

	"github.com/darinkishore/hurry/registry"
	"github.com/darinkishore/hurry/unit"
)

// Scenario C (spec.md §8): libc compatibility filter.
func TestSelectCandidateLibcFilter(t *testing.T) {
	candidates := []unit.SavedUnit{
		{UnitHash: "h1", HostLibc: &unit.HostLibc{Family: "glibc", Version: "2.31"}, CreatedAtNS: 1},
		{UnitHash: "h1", HostLibc: &unit.HostLibc{Family: "glibc", Version: "2.35"}, CreatedAtNS: 2},
	}

	got, ok := registry.SelectCandidate(candidates, registry.HostFacts{LibcFamily: "glibc", LibcVersion: "2.33"})
	if !ok {
		t.Fatalf("expected a usable candidate")
	}
	if got.HostLibc.Version != "2.31" {
		t.Fatalf("expected 2.31 selected, got %s", got.HostLibc.Version)
	}

	_, ok = registry.SelectCandidate(candidates, registry.HostFacts{LibcFamily: "glibc", LibcVersion: "2.28"})
	if ok {
		t.Fatalf("expected both candidates rejected on glibc 2.28")
	}
}

func TestSelectCandidatePlatformPureAlwaysUsable(t *testing.T) {
	candidates := []unit.SavedUnit{{UnitHash: "h1", HostLibc: nil}}
	got, ok := registry.SelectCandidate(candidates, registry.HostFacts{LibcFamily: "musl", LibcVersion: "1.2.0"})
	if !ok || got.UnitHash != "h1" {
		t.Fatalf("expected platform-pure candidate to always be usable")
	}
}

func TestSelectCandidateTiesByCreationTime(t *testing.T) {
	candidates := []unit.SavedUnit{
		{UnitHash: "h1", HostLibc: &unit.HostLibc{Family: "glibc", Version: "2.31"}, CreatedAtNS: 5},
		{UnitHash: "h1", HostLibc: &unit.HostLibc{Family: "glibc", Version: "2.31"}, CreatedAtNS: 9},
	}
	got, ok := registry.SelectCandidate(candidates, registry.HostFacts{LibcFamily: "glibc", LibcVersion: "2.31"})
	if !ok || got.CreatedAtNS != 9 {
		t.Fatalf("expected the most recently created tied candidate, got %+v", got)
	}
}
