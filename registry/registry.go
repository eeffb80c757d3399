package registry

import (
	"context"

	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/unit"
)

// Registry is the top-level metadata registry (spec.md §4.3): RemoteClient
// is authoritative, LocalCache is a pure accelerator in front of it. Every
// write goes through the remote first; the local cache is only ever
// populated from a confirmed remote response.
type Registry struct {
	remote *RemoteClient
	local  *LocalCache
	host   HostFacts
}

func New(remote *RemoteClient, local *LocalCache, host HostFacts) *Registry {
	return &Registry{remote: remote, local: local, host: host}
}

// Lookup returns the best candidate for (tenant, unitHash, resolvedTarget)
// usable on this host, or (zero, false) on a miss (spec.md §4.3 lookup).
// The local cache is consulted first, scanning every host_libc candidate it
// holds for that (unitHash, resolvedTarget) slot with the same
// SelectCandidate compatibility rule the remote path applies; only a local
// miss falls through to the remote round trip.
func (r *Registry) Lookup(ctx context.Context, tenant, unitHash, resolvedTarget string) (unit.SavedUnit, bool, error) {
	if r.local != nil {
		if su, ok := r.local.Get(tenant, unitHash, resolvedTarget, r.host); ok {
			return su, true, nil
		}
	}

	candidates, err := r.remote.Lookup(ctx, tenant, unitHash)
	if err != nil {
		return unit.SavedUnit{}, false, err
	}
	best, ok := SelectCandidate(candidates, r.host)
	if !ok {
		return unit.SavedUnit{}, false, nil
	}
	if r.local != nil {
		_ = r.local.Put(tenant, best) // local cache is best-effort
	}
	return best, true, nil
}

// LookupMany batches Lookup across a whole build plan, returning the best
// usable candidate per unit_hash that has one.
func (r *Registry) LookupMany(ctx context.Context, tenant string, unitHashes []string) (map[string]unit.SavedUnit, error) {
	entries, err := r.remote.LookupMany(ctx, tenant, unitHashes)
	if err != nil {
		return nil, err
	}
	out := make(map[string]unit.SavedUnit, len(entries))
	for _, e := range entries {
		best, ok := SelectCandidate(e.Candidates, r.host)
		if !ok {
			continue
		}
		out[e.UnitHash] = best
		if r.local != nil {
			_ = r.local.Put(tenant, best)
		}
	}
	return out, nil
}

// Register durably stores su for tenant (spec.md §4.3 register). A
// resubmission identical to what the registry already holds is a no-op
// success; RemoteClient.Register surfaces a genuine conflict as a 409
// *cmn.HTTPError, which Register passes through unchanged — reconciling a
// conflict is the uploader's policy decision, not the registry's.
func (r *Registry) Register(ctx context.Context, tenant string, su unit.SavedUnit) error {
	if err := r.remote.Register(ctx, tenant, su); err != nil {
		return err
	}
	if r.local != nil {
		return r.local.Put(tenant, su)
	}
	return nil
}

// Delete clears every SavedUnit cached locally for tenant and, when remote
// is true, every SavedUnit registered remotely as well (spec.md §4.3
// delete, "cache reset --remote").
func (r *Registry) Delete(ctx context.Context, tenant string, remote bool) error {
	if remote {
		if err := r.remote.Delete(ctx, tenant); err != nil {
			return err
		}
	}
	if r.local != nil {
		return r.local.DeleteTenant(tenant)
	}
	return nil
}

// IsConflict reports whether err is the 409 Register returns for a
// genuine identity collision with differing content (spec.md §4.3).
func IsConflict(err error) bool {
	herr, ok := err.(*cmn.HTTPError)
	return ok && herr.Status == 409
}
