// Package quarantine holds the administratively soft-voided transaction
// list: hashes an operator has flagged out-of-band (stolen funds, a
// known-bad issuance, a court order) whose voidance must still flow
// through the funds DAG like any other voidance, but never through the
// verification DAG.
package quarantine

import (
	"sync"

	"github.com/rawblock/dag-consensus/pkg/dag"
)

// Registry is a concurrent-safe set of soft-voided transaction hashes.
// Reads (the consensus hot path, checking membership on every parent
// scan) take the read lock; writes (operator add/remove) are serialized.
type Registry struct {
	mu  sync.RWMutex
	ids map[dag.Hash]struct{}
}

// New builds an empty registry, optionally seeded with hashes (e.g. from
// the SOFT_VOIDED_TX_IDS configuration value).
func New(seed ...dag.Hash) *Registry {
	r := &Registry{ids: make(map[dag.Hash]struct{}, len(seed))}
	for _, h := range seed {
		r.ids[h] = struct{}{}
	}
	return r
}

// Add registers a hash for soft-voidance.
func (r *Registry) Add(h dag.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[h] = struct{}{}
}

// Remove lifts a hash's soft-voidance.
func (r *Registry) Remove(h dag.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, h)
}

// Contains reports whether h is currently soft-voided.
func (r *Registry) Contains(h dag.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[h]
	return ok
}

// Intersects reports whether any hash in hs is currently soft-voided,
// used by the soft-void filter to fast-path the common disjoint case.
func (r *Registry) Intersects(hs dag.HashSet) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for h := range hs {
		if _, ok := r.ids[h]; ok {
			return true
		}
	}
	return false
}

// List returns every currently soft-voided hash, in unspecified order.
func (r *Registry) List() []dag.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]dag.Hash, 0, len(r.ids))
	for h := range r.ids {
		out = append(out, h)
	}
	return out
}

// Size returns the number of soft-voided hashes.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}
