package main

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// hostTargetTriple approximates the Rust target triple for the running
// host from GOOS/GOARCH. Good enough to scope the planner's libc
// compatibility check (spec.md §4.2); a cross-compiling invocation should
// set HURRY_TARGET_TRIPLE explicitly instead.
func hostTargetTriple() string {
	if v := os.Getenv("HURRY_TARGET_TRIPLE"); v != "" {
		return v
	}

	arch := map[string]string{
		"amd64": "x86_64",
		"arm64": "aarch64",
		"386":   "i686",
	}[runtime.GOARCH]
	if arch == "" {
		arch = runtime.GOARCH
	}

	switch runtime.GOOS {
	case "linux":
		libc := "gnu"
		if isMuslHost() {
			libc = "musl"
		}
		return arch + "-unknown-linux-" + libc
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return arch + "-unknown-" + runtime.GOOS
	}
}

// hostLibc reports the libc family/version this host satisfies (spec.md
// §4.3). Returns ("", "") on non-Linux hosts. On Linux, a version that
// cannot be read from ldd comes back as "" with family "gnu" or "musl";
// either way no host_libc-bearing candidate with a non-zero version is
// usable — the conservative choice.
func hostLibc() (family, version string) {
	if runtime.GOOS != "linux" {
		return "", ""
	}
	if isMuslHost() {
		return "musl", muslVersion()
	}
	return "gnu", glibcVersion()
}

func isMuslHost() bool {
	out, err := exec.Command("ldd", "--version").CombinedOutput()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), "musl")
}

func glibcVersion() string {
	out, err := exec.Command("ldd", "--version").Output()
	if err != nil {
		return ""
	}
	lines := strings.SplitN(string(out), "\n", 2)
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func muslVersion() string {
	out, err := exec.Command("ldd", "--version").CombinedOutput()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "Version") {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				return fields[len(fields)-1]
			}
		}
	}
	return ""
}
