package main

import (
	"fmt"
	"path/filepath"

	"github.com/darinkishore/hurry/cas"
	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/planner"
	"github.com/darinkishore/hurry/registry"
	"github.com/darinkishore/hurry/uploader"
)

// core bundles every component a cache-aware subcommand needs, built once
// from resolved configuration (spec.md §6). Subcommands that cannot afford
// the cache (missing token, unreachable endpoint) fall back to a plain
// pass-through build rather than constructing one of these.
type core struct {
	cfg      cmn.Config
	tenant   string
	registry *registry.Registry
	cas      *cas.CAS
	uploader *uploader.Client
	host     planner.HostFacts
}

func newCore(endpointOverride ...string) (*core, error) {
	cfg, err := cmn.Load()
	if err != nil {
		return nil, err
	}
	if len(endpointOverride) > 0 && endpointOverride[0] != "" {
		cfg.APIURL = endpointOverride[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	local, err := registry.NewLocalCache(filepath.Join(cfg.CacheDir, "registry.db"))
	if err != nil {
		return nil, err
	}
	remote := registry.NewRemoteClient(cfg.APIURL, cfg.APIToken)

	localStore, err := cas.NewLocalStore(filepath.Join(cfg.CacheDir, "blobs"))
	if err != nil {
		return nil, err
	}
	backend := cas.NewHTTPBackend(cfg.APIURL, cfg.APIToken, cas.CodecByName(cfg.Codec))

	host := planner.HostFacts{
		TargetTriple: hostTargetTriple(),
	}
	family, version := hostLibc()
	host.LibcFamily = family
	host.LibcVersion = version

	reg := registry.New(remote, local, registry.HostFacts{LibcFamily: host.LibcFamily, LibcVersion: host.LibcVersion})

	return &core{
		cfg:      cfg,
		tenant:   cfg.Tenant(),
		registry: reg,
		cas:      cas.New(localStore, backend),
		uploader: uploader.NewClient(cfg.CacheDir),
		host:     host,
	}, nil
}

// cacheDisabledErr formats a configuration problem as a diagnostic rather
// than a build failure: every cache subcommand prints this and falls back
// to whatever a plain pass-through invocation would have done (spec.md §7).
func cacheDisabledErr(err error) error {
	return fmt.Errorf("cache disabled: %w", err)
}
