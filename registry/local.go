package registry

import (
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/darinkishore/hurry/unit"
)

const (
	autoShrinkSizeBytes = 1 << 20 // 1 MiB, matches the teacher's dbdriver default
	collectionSep       = "##"
)

// LocalCache is the meta.db-equivalent local fast path (spec.md §9 Open
// Question, resolved in SPEC_FULL.md §4): a buntdb file recording, per
// (tenant, unit_hash, resolved_target), the SavedUnit candidates confirmed
// for it (one per host_libc), so a restore that finds a usable candidate
// locally can skip a round trip to the remote registry. It is a pure accelerator: every lookup that misses here
// falls through to RemoteClient, and nothing is ever written here except as
// a cache of what the remote already confirmed.
//
// Adapted one-for-one from the teacher's dbdriver.BuntDriver, generalized
// from aistore's arbitrary collection/key pairs to this package's
// (tenant, cacheKey) shape.
type LocalCache struct {
	db *buntdb.DB
}

func NewLocalCache(cacheDir string) (*LocalCache, error) {
	dir := filepath.Join(cacheDir, "v1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "meta.db")
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    autoShrinkSizeBytes,
		AutoShrinkPercentage: 50,
	})
	return &LocalCache{db: db}, nil
}

func (c *LocalCache) Close() error { return c.db.Close() }

// cacheKey identifies the (unit_hash, resolved_target) slot a host_libc
// candidate set is stored under. host_libc is deliberately NOT part of the
// key: a single unit_hash/resolved_target pair can have several registered
// candidates differing only by host_libc, exactly as the remote registry
// holds them, and Get must be able to pick among them the same way
// SelectCandidate does.
func cacheKey(unitHash, resolvedTarget string) string {
	var b strings.Builder
	b.WriteString(unitHash)
	b.WriteString(collectionSep)
	b.WriteString(resolvedTarget)
	return b.String()
}

func tenantPath(tenant, key string) string { return tenant + collectionSep + key }

// localEntry is the on-disk value at one cacheKey: every SavedUnit ever
// confirmed durable by the remote registry for that (unit_hash,
// resolved_target), distinguished by host_libc.
type localEntry struct {
	Candidates []unit.SavedUnit `json:"candidates"`
}

func sameLibc(a, b *unit.HostLibc) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Family == b.Family && a.Version == b.Version
}

// Get returns the best SavedUnit cached locally for (tenant, unit_hash,
// resolved_target) usable on host, applying the same compatibility rule as
// the remote path (SelectCandidate), if present.
func (c *LocalCache) Get(tenant, unitHash, resolvedTarget string, host HostFacts) (unit.SavedUnit, bool) {
	key := tenantPath(tenant, cacheKey(unitHash, resolvedTarget))
	var entry localEntry
	err := c.db.View(func(tx *buntdb.Tx) error {
		s, err := tx.Get(key)
		if err != nil {
			return err
		}
		return jsoniter.Unmarshal([]byte(s), &entry)
	})
	if err != nil {
		return unit.SavedUnit{}, false
	}
	return SelectCandidate(entry.Candidates, host)
}

// Put caches a SavedUnit the remote registry has already confirmed durable,
// merging it into whatever candidate set already exists at its
// (unit_hash, resolved_target) slot, replacing any prior entry with the
// same host_libc.
func (c *LocalCache) Put(tenant string, su unit.SavedUnit) error {
	key := tenantPath(tenant, cacheKey(su.UnitHash, su.ResolvedTarget))
	return c.db.Update(func(tx *buntdb.Tx) error {
		var entry localEntry
		if s, err := tx.Get(key); err == nil {
			if jerr := jsoniter.Unmarshal([]byte(s), &entry); jerr != nil {
				return jerr
			}
		}

		replaced := false
		for i, existing := range entry.Candidates {
			if sameLibc(existing.HostLibc, su.HostLibc) {
				entry.Candidates[i] = su
				replaced = true
				break
			}
		}
		if !replaced {
			entry.Candidates = append(entry.Candidates, su)
		}

		data, err := jsoniter.Marshal(entry)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(key, string(data), nil)
		return err
	})
}

// DeleteTenant drops every locally cached entry for tenant (used by the
// administrative "cache reset" operation, spec.md §4.3 delete).
func (c *LocalCache) DeleteTenant(tenant string) error {
	prefix := tenant + collectionSep
	var keys []string
	if err := c.db.View(func(tx *buntdb.Tx) error {
		tx.AscendKeys(prefix+"*", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		return nil
	}); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.db.Update(func(tx *buntdb.Tx) error {
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}
