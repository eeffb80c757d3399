// Package cmn provides common low-level types, errors and utilities shared
// by every component of the unit-cache core.
package cmn

import "fmt"

// HTTPError wraps a non-2xx response from the registry or CAS remote so
// callers can type-switch on Status rather than string-matching errors.
type HTTPError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// Transient reports whether the error is worth retrying: timeouts and 5xx.
func (e *HTTPError) Transient() bool {
	return e.Status >= 500 || e.Status == 0
}

// NotFoundError is returned by registry/CAS lookups for a normal miss; it is
// never fatal and callers should treat it as "continue with a miss", not an
// internal failure.
type NotFoundError struct {
	Collection string
	Key        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s: not found", e.Collection, e.Key)
}

func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// LockContentionError is returned when the target-directory lock (§5) is
// already held by another invocation. It is fatal to the invocation with a
// distinct exit code (§6).
type LockContentionError struct {
	Path string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("another invocation holds the lock at %s", e.Path)
}

func IsLockContention(err error) bool {
	_, ok := err.(*LockContentionError)
	return ok
}

// ConfigError wraps a configuration problem (missing token, unreachable
// endpoint) that should cause the invocation to fall back to a plain
// pass-through build rather than fail outright.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration: " + e.Reason }

// PlannerError is fatal to the invocation: the builder's dry-run output was
// malformed, a unit kind is unsupported, or the target triple could not be
// determined.
type PlannerError struct {
	Reason string
}

func (e *PlannerError) Error() string { return "planner: " + e.Reason }

// HashMismatchError is returned when a downloaded blob's content hash does
// not match the CAS key it was fetched under.
type HashMismatchError struct {
	Key      string
	Got      string
	Expected string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: got %s, expected %s", e.Key, e.Got, e.Expected)
}
