package consensus

import "github.com/rawblock/dag-consensus/pkg/dag"

// SoftVoidFilter suppresses propagation of soft-voided hashes along the
// verification DAG. Funds-edge propagation injects the sentinel
// explicitly in TransactionConsensus and is not filtered here.
type SoftVoidFilter struct {
	registry softVoidRegistry
}

// softVoidRegistry is the minimal surface consensus needs from
// quarantine.Registry; declared locally so this package does not import
// quarantine directly (kept decoupled from the admin-facing registry
// type, matching spec.md's "Configuration exposed at construction").
type softVoidRegistry interface {
	Contains(h dag.Hash) bool
	Intersects(hs dag.HashSet) bool
}

func NewSoftVoidFilter(registry softVoidRegistry) *SoftVoidFilter {
	return &SoftVoidFilter{registry: registry}
}

// IsSoftVoided reports whether h is administratively quarantined.
func (f *SoftVoidFilter) IsSoftVoided(h dag.Hash) bool {
	return f.registry.Contains(h)
}

// Filter implements spec.md §4.3: given record r and a candidate voided
// set V sourced from a verification-parent of r, return V unchanged
// when V is disjoint from the soft-voided set; otherwise strip the
// sentinel, r's own hash, every soft-voided hash, and every h in V
// whose own voided_by is itself disjoint from the soft-voided set.
func (f *SoftVoidFilter) Filter(r dag.Hash, v dag.HashSet, voidedByOf func(dag.Hash) dag.HashSet) dag.HashSet {
	if !f.registry.Intersects(v) {
		return v
	}
	out := make(dag.HashSet, v.Len())
	for h := range v {
		if h == dag.SoftVoidedID || h == r {
			continue
		}
		if f.registry.Contains(h) {
			continue
		}
		if !f.registry.Intersects(voidedByOf(h)) {
			continue
		}
		out.Add(h)
	}
	return out
}
