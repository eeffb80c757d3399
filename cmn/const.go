package cmn

import "time"

// Environment variables understood by the core (spec.md §6).
const (
	EnvAPIToken = "HURRY_API_TOKEN"
	EnvAPIURL   = "HURRY_API_URL"
	EnvLogLevel = "HURRY_LOG_LEVEL"
	EnvCacheDir = "HURRY_CACHE_DIR"
	EnvConfig   = "HURRY_CONFIG"
)

// Default per-call timeouts (spec.md §5).
const (
	DefaultRegistryTimeout  = 10 * time.Second
	DefaultCASHeadTimeout   = 5 * time.Second
	DefaultCASPutGetTimeout = 60 * time.Second
	DefaultPlannerTimeout   = 5 * time.Minute
	DefaultLockWaitTimeout  = 3 * time.Second
)

// Default pool sizes (spec.md §5).
const (
	DefaultRestorePoolSize    = 8
	DefaultSavePoolSize       = 8
	DefaultUploadConcurrency  = 8
	DefaultWorkerQuietPeriod  = 10 * time.Minute
	DefaultBlobUploadAttempts = 5
)

// Process exit codes beyond pass-through from the builder (spec.md §6).
const (
	ExitOK             = 0
	ExitPlanFailed     = 17
	ExitLockContention = 18
	ExitConfigFallback = 0 // cache is always optional: never fails the build
)
