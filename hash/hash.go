// Package hash provides stable content hashing of bytes and of structured
// cache-key records (spec.md §2 Hasher: "pure, no I/O"). Nothing in this
// package touches the filesystem or network.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/OneOfOne/xxhash"
)

// Digest is a 256-bit collision-resistant content hash.
//
// A cryptographic hash is used here rather than one of the pack's
// non-cryptographic digests (OneOfOne/xxhash, used below for the cheap
// pre-check) because unit_hash and blob keys are the cache's collision
// domain across every tenant and host forever; the standard library's
// crypto/sha256 is the idiomatic, zero-dependency choice the wider Go
// ecosystem reaches for whenever content addressing needs to be collision
// resistant (git, Bazel's CAS, OCI digests all do the same) — no
// third-party alternative in the pack does this job better.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) IsZero() bool { return d == Digest{} }

// Bytes hashes an arbitrary byte slice — used to derive blob keys from
// uncompressed blob content (spec.md §3 Blob, §4.7).
func Bytes(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// QuickDigest is a fast, non-cryptographic 64-bit digest for cheap
// in-process comparisons. It must never be used as a cache key. The restore
// engine's "is this file already byte-identical" pre-check (spec.md §4.4
// step 3f) does not use it: that check compares a full Digest with the
// blob key.
type QuickDigest uint64

func Quick(b []byte) QuickDigest { return QuickDigest(xxhash.Checksum64(b)) }

// Record is the canonical, fixed-order encoding of a structured cache-key
// record. Callers build one field at a time via the With* methods so that
// adding a field to the identity is a single, reviewable diff (spec.md §9:
// "make this impossible to forget").
type Record struct {
	buf []byte
}

func NewRecord() *Record { return &Record{} }

func (r *Record) writeString(s string) *Record {
	// length-prefix every field so that e.g. ("ab","c") and ("a","bc")
	// never collide once concatenated.
	n := len(s)
	r.buf = append(r.buf,
		byte(n), byte(n>>8), byte(n>>16), byte(n>>24),
		byte(n>>32), byte(n>>40), byte(n>>48), byte(n>>56),
	)
	r.buf = append(r.buf, s...)
	return r
}

func (r *Record) WithString(s string) *Record { return r.writeString(s) }

func (r *Record) WithBool(b bool) *Record {
	if b {
		r.buf = append(r.buf, 1)
	} else {
		r.buf = append(r.buf, 0)
	}
	return r
}

func (r *Record) writeLen(n int) *Record {
	u := uint64(n)
	r.buf = append(r.buf,
		byte(u), byte(u>>8), byte(u>>16), byte(u>>24),
		byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56),
	)
	return r
}

func (r *Record) WithInt(n int) *Record { return r.writeLen(n) }

// WithSortedStrings writes a lexicographically-sorted string set, so that
// two callers supplying the same set in different orders converge on the
// same Record (spec.md §4.2: "lexicographically-sorted feature set").
// The input slice is sorted in place; callers owning a shared slice must
// copy first.
func (r *Record) WithSortedStrings(ss []string) *Record {
	sort.Strings(ss)
	r.writeLen(len(ss))
	for _, s := range ss {
		r.writeString(s)
	}
	return r
}

// WithDigests writes an ordered sequence of Digests as-is (callers that need
// sorted-by-value semantics, e.g. dependency unit_hashes, must sort before
// calling — spec.md §4.2 keeps dependency unit_hashes as the planner orders
// them, which is the sorted order it already computes them in).
func (r *Record) WithDigests(ds []Digest) *Record {
	r.writeLen(len(ds))
	for _, d := range ds {
		r.buf = append(r.buf, d[:]...)
	}
	return r
}

// Sum hashes the accumulated Record. The identity fields themselves are
// written into the Record in one place, planner.unitHash; every call site
// that needs a unit_hash must route through there (spec.md §9).
func (r *Record) Sum() Digest { return Bytes(r.buf) }
