// Package dag defines the record and metadata types that make up the
// consensus DAG: blocks and transactions, and the mutable per-record
// metadata the consensus core maintains for them.
package dag

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash is a 32-byte content address shared by every record in the DAG.
// It reuses chainhash's fixed-size array shape since both a Bitcoin txid
// and a DAG record hash are 32-byte digests with the same hex-printing
// convention.
type Hash [32]byte

// ZeroHash is the empty hash, never a valid record address.
var ZeroHash = Hash{}

// SoftVoidedID is the sentinel hash injected into a transaction's
// voided_by set to mark soft-voided lineage. It never corresponds to a
// real record and is never carried across a block-parent edge.
var SoftVoidedID = Hash{0xff}

// String renders the hash as lowercase hex, big-endian (txid order),
// matching chainhash.Hash.String().
func (h Hash) String() string {
	return chainhash.Hash(h).String()
}

// HashFromHex parses a big-endian hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	ch, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return Hash{}, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return Hash(*ch), nil
}

// HashFromBytes copies a byte slice into a Hash, erroring if the length
// is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// HashSet is a small set-of-hashes convenience type used throughout the
// consensus core for voided_by, conflict_with, and twins.
type HashSet map[Hash]struct{}

// NewHashSet builds a HashSet from zero or more hashes.
func NewHashSet(hs ...Hash) HashSet {
	s := make(HashSet, len(hs))
	for _, h := range hs {
		s[h] = struct{}{}
	}
	return s
}

func (s HashSet) Has(h Hash) bool {
	_, ok := s[h]
	return ok
}

func (s HashSet) Add(h Hash) {
	s[h] = struct{}{}
}

func (s HashSet) Remove(h Hash) {
	delete(s, h)
}

func (s HashSet) Len() int {
	return len(s)
}

// Slice returns the set's members in unspecified order.
func (s HashSet) Slice() []Hash {
	out := make([]Hash, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	return out
}

// Union returns a new set containing every member of s and other.
func (s HashSet) Union(other HashSet) HashSet {
	out := make(HashSet, len(s)+len(other))
	for h := range s {
		out[h] = struct{}{}
	}
	for h := range other {
		out[h] = struct{}{}
	}
	return out
}

// Clone returns a shallow copy of s.
func (s HashSet) Clone() HashSet {
	out := make(HashSet, len(s))
	for h := range s {
		out[h] = struct{}{}
	}
	return out
}

// HashFromHexMust is a convenience for tests and static configuration;
// it panics on a malformed hex string.
func HashFromHexMust(s string) Hash {
	h, err := HashFromHex(s)
	if err != nil {
		panic(err)
	}
	return h
}
