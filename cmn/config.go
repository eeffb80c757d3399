package cmn

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Config is the core's resolved configuration: built-in defaults, overridden
// by $HURRY_CONFIG (if present), overridden in turn by environment variables.
// This mirrors the teacher's "load defaults, then a file, then env" pattern.
type Config struct {
	APIToken string `json:"api_token"`
	APIURL   string `json:"api_url"`
	CacheDir string `json:"cache_dir"`
	LogLevel int     `json:"log_level"`

	RestorePoolSize   int           `json:"restore_pool_size"`
	SavePoolSize      int           `json:"save_pool_size"`
	UploadConcurrency int           `json:"upload_concurrency"`
	WorkerQuietPeriod time.Duration `json:"worker_quiet_period"`

	RegistryTimeout  time.Duration `json:"registry_timeout"`
	CASHeadTimeout   time.Duration `json:"cas_head_timeout"`
	CASPutGetTimeout time.Duration `json:"cas_put_get_timeout"`
	PlannerTimeout   time.Duration `json:"planner_timeout"`

	// Codec selects the streaming compression codec used by the CAS client:
	// "zstd" (default, klauspost/compress) or "lz4" (pierrec/lz4).
	Codec string `json:"codec"`
}

func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		CacheDir:          filepath.Join(home, ".cache", "hurry"),
		RestorePoolSize:   DefaultRestorePoolSize,
		SavePoolSize:      DefaultSavePoolSize,
		UploadConcurrency: DefaultUploadConcurrency,
		WorkerQuietPeriod: DefaultWorkerQuietPeriod,
		RegistryTimeout:   DefaultRegistryTimeout,
		CASHeadTimeout:    DefaultCASHeadTimeout,
		CASPutGetTimeout:  DefaultCASPutGetTimeout,
		PlannerTimeout:    DefaultPlannerTimeout,
		Codec:             "zstd",
	}
}

// Load resolves Config from defaults, an optional JSON file, then the
// environment. It never returns an error for a missing/absent config file —
// only for a present-but-malformed one, since a missing file is the common
// case on a fresh machine.
func Load() (Config, error) {
	cfg := Defaults()

	path := os.Getenv(EnvConfig)
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".cache", "hurry", "config.json")
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := jsoniter.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Reason: "malformed config at " + path + ": " + err.Error()}
		}
	}

	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		cfg.CacheDir = v
	}
	return cfg, nil
}

// Validate returns a *ConfigError describing the first reason the cache
// should be treated as unavailable for this invocation (§7 Configuration
// errors: fatal to the invocation, not to the build).
func (c Config) Validate() error {
	if c.APIToken == "" {
		return &ConfigError{Reason: "missing " + EnvAPIToken}
	}
	if c.APIURL == "" {
		return &ConfigError{Reason: "missing " + EnvAPIURL}
	}
	if _, err := TenantFromToken(c.APIToken); err != nil {
		return err
	}
	return nil
}

// Tenant extracts the tenant scoping every registry/CAS call this process
// makes. Validate must have already succeeded.
func (c Config) Tenant() string {
	tenant, _ := TenantFromToken(c.APIToken)
	return tenant
}
