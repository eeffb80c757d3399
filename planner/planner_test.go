package planner_test

import (
	"strings"
	"testing"

	"github.com/darinkishore/hurry/planner"
	"github.com/darinkishore/hurry/unit"
)

func decode(t *testing.T, raw string) *planner.Manifest {
	t.Helper()
	m, err := planner.DecodeManifest(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	return m
}

const baseUnit = `{"id":"a","package_name":"serde","package_version":"1.0.0","target_triple":"x86_64-unknown-linux-gnu","profile":{"opt_level":"0","debug_info_level":"2","debug_assertions":true,"overflow_checks":true,"test":false},"features":["derive","std"],"edition":"2021","extra_filename":"-abc123","dependency_ids":[]}`

func TestPlanComputesUnitHashDeterministically(t *testing.T) {
	host := planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu", LibcFamily: "glibc", LibcVersion: "2.35"}

	m1 := decode(t, `{"units":[`+baseUnit+`]}`)
	p1, err := planner.Plan(m1, host)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	m2 := decode(t, `{"units":[`+baseUnit+`]}`)
	p2, err := planner.Plan(m2, host)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if p1[0].UnitHash != p2[0].UnitHash {
		t.Fatalf("expected identical unit_hash for identical manifests")
	}
}

func TestPlanFeatureOrderIndependent(t *testing.T) {
	host := planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu"}

	a := `{"units":[{"id":"a","package_name":"p","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":["x","y"],"edition":"2021","extra_filename":"-1","dependency_ids":[]}]}`
	b := `{"units":[{"id":"a","package_name":"p","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":["y","x"],"edition":"2021","extra_filename":"-1","dependency_ids":[]}]}`

	pa, err := planner.Plan(decode(t, a), host)
	if err != nil {
		t.Fatalf("Plan a: %v", err)
	}
	pb, err := planner.Plan(decode(t, b), host)
	if err != nil {
		t.Fatalf("Plan b: %v", err)
	}
	if pa[0].UnitHash != pb[0].UnitHash {
		t.Fatalf("expected feature order to not affect unit_hash")
	}
}

func TestPlanDependencyHashFeedsIntoDependentHash(t *testing.T) {
	host := planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu"}
	raw := `{"units":[
		{"id":"dep","package_name":"dep","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":[]},
		{"id":"top","package_name":"top","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":["dep"]}
	]}`
	plans, err := planner.Plan(decode(t, raw), host)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	var top *unit.UnitPlan
	for i := range plans {
		if plans[i].PackageName == "top" {
			top = &plans[i]
		}
	}
	if top == nil {
		t.Fatalf("top unit missing from plan")
	}
	if len(top.DependencyHashes) != 1 {
		t.Fatalf("expected exactly one dependency hash, got %d", len(top.DependencyHashes))
	}
}

func TestPlanRejectsUnknownDependency(t *testing.T) {
	raw := `{"units":[{"id":"a","package_name":"p","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":["missing"]}]}`
	_, err := planner.DecodeManifest(strings.NewReader(raw))
	if err == nil {
		t.Fatalf("expected error for dangling dependency id")
	}
}

func TestPlanRejectsEmptyManifest(t *testing.T) {
	_, err := planner.DecodeManifest(strings.NewReader(`{"units":[]}`))
	if err == nil {
		t.Fatalf("expected error for empty manifest")
	}
}

func TestPlanRejectsDependencyCycle(t *testing.T) {
	raw := `{"units":[
		{"id":"a","package_name":"a","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":["b"]},
		{"id":"b","package_name":"b","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":["a"]}
	]}`
	m := decode(t, raw)
	_, err := planner.Plan(m, planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu"})
	if err == nil {
		t.Fatalf("expected cycle to be rejected")
	}
}

func TestClassifyLibcAbsentForProcMacro(t *testing.T) {
	raw := `{"units":[{"id":"a","package_name":"pm","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":[],"is_proc_macro":true}]}`
	plans, err := planner.Plan(decode(t, raw), planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu", LibcFamily: "glibc", LibcVersion: "2.35"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plans[0].HostLibc != nil {
		t.Fatalf("expected proc-macro unit to have no host_libc")
	}
}

func TestClassifyLibcAbsentForPureRlibLibraryCrate(t *testing.T) {
	raw := `{"units":[{"id":"a","package_name":"p","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":[]}]}`
	plans, err := planner.Plan(decode(t, raw), planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu", LibcFamily: "glibc", LibcVersion: "2.35"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plans[0].HostLibc != nil {
		t.Fatalf("expected a pure rlib library-crate to have no host_libc, got %+v", plans[0].HostLibc)
	}
}

func TestClassifyLibcPresentForLibraryCrateWithNativeDependency(t *testing.T) {
	raw := `{"units":[{"id":"a","package_name":"p","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":[],"has_native_dependency":true}]}`
	plans, err := planner.Plan(decode(t, raw), planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu", LibcFamily: "glibc", LibcVersion: "2.35"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plans[0].HostLibc == nil || plans[0].HostLibc.Family != "glibc" {
		t.Fatalf("expected host_libc present for a library-crate with a native dependency, got %+v", plans[0].HostLibc)
	}
}

func TestClassifyLibcPresentForHelperProgramBinary(t *testing.T) {
	raw := `{"units":[{"id":"a","package_name":"helper","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":[],"helper":{"binary_stem":"helper"}}]}`
	plans, err := planner.Plan(decode(t, raw), planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu", LibcFamily: "glibc", LibcVersion: "2.35"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plans[0].HostLibc == nil || plans[0].HostLibc.Family != "glibc" {
		t.Fatalf("expected host_libc present for a helper-program binary even with no native dependency flag, got %+v", plans[0].HostLibc)
	}
}

func TestExpectedSynthesizedOnlyForHelperExec(t *testing.T) {
	raw := `{"units":[{"id":"a","package_name":"build-script-build","package_version":"1","target_triple":"x86_64-unknown-linux-gnu","profile":{},"features":[],"edition":"2021","extra_filename":"-1","dependency_ids":[],"helper":{"binary_stem":"build-script-build"},"is_build_script_run":true}]}`
	plans, err := planner.Plan(decode(t, raw), planner.HostFacts{TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plans[0].ExpectedSynthesized) != 1 || plans[0].ExpectedSynthesized[0].Kind != unit.KindRootOutput {
		t.Fatalf("expected a root-output synthesized template, got %+v", plans[0].ExpectedSynthesized)
	}
}
