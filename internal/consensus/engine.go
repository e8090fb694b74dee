// Package consensus implements the DAG consensus core: weight
// arithmetic, the soft-void filter, block consensus, transaction
// consensus, and the driver that ties them together. Block and
// transaction consensus are mutually recursive (a block's chain-voiding
// walk can mark transactions voided, which can cascade into spender
// transactions, which can in turn touch blocks that confirm them) so
// both live as methods on a single Engine, colocated in one package the
// way spec.md §9 recommends for languages without cyclic modules.
package consensus

import "github.com/rawblock/dag-consensus/pkg/dag"

// Engine holds the configuration and Storage binding shared by
// BlockConsensus (block.go) and TransactionConsensus (transaction.go).
type Engine struct {
	storage     Storage
	soft        *SoftVoidFilter
	weightTol   float64
	slowAsserts bool
}

// Config bundles Engine's construction-time settings, matching spec.md
// §6's "Configuration (exposed at construction)".
type Config struct {
	SoftVoidFilter *SoftVoidFilter
	WeightTol      float64
	SlowAsserts    bool
}

// NewEngine builds a consensus Engine bound to storage.
func NewEngine(storage Storage, cfg Config) *Engine {
	tol := cfg.WeightTol
	if tol == 0 {
		tol = DefaultWeightTolerance
	}
	return &Engine{
		storage:     storage,
		soft:        cfg.SoftVoidFilter,
		weightTol:   tol,
		slowAsserts: cfg.SlowAsserts,
	}
}

func (e *Engine) cmp(s, sStar float64) Ordering {
	return CompareWeights(s, sStar, e.weightTol)
}

func (e *Engine) mustMeta(h dag.Hash) *dag.Metadata {
	m, err := e.storage.GetMetadata(h)
	if err != nil {
		fatalf("metadata lookup for %s: %v", h, err)
	}
	return m
}

func (e *Engine) mustRecord(h dag.Hash) *dag.Record {
	r, err := e.storage.GetRecord(h)
	if err != nil {
		fatalf("record lookup for %s: %v", h, err)
	}
	return r
}
