package consensus

import "github.com/rawblock/dag-consensus/pkg/dag"

// Storage is the external collaborator named in spec.md §6. It owns
// every record and its metadata; the consensus core only ever borrows
// references for the duration of one Driver.Update call.
type Storage interface {
	// GetRecord returns the immutable record for hash, or an error if unknown.
	GetRecord(h dag.Hash) (*dag.Record, error)

	// GetMetadata returns the live, mutable-in-place metadata for hash.
	// Reads during an update always see the in-memory copy, never a
	// stale persisted one.
	GetMetadata(h dag.Hash) (*dag.Metadata, error)

	// SaveMetadata persists metadata for hash. onlyMetadata is always
	// true from the consensus core (it never writes record bodies), and
	// is threaded through so a Storage backed by a generic KV layer can
	// still tell the two write shapes apart if it needs to.
	SaveMetadata(h dag.Hash, m *dag.Metadata, onlyMetadata bool) error

	// RemoveFromIndexes drops hash from any secondary index (height
	// index membership, best-tip candidacy, etc.) without deleting the
	// record or its metadata. Called when a record becomes voided.
	RemoveFromIndexes(h dag.Hash) error

	// AddToIndexes restores hash to secondary indexes. Called when a
	// record becomes executed again (e.g. after remove_voided_by).
	AddToIndexes(h dag.Hash) error

	// BestBlockTips returns the current best-tip set. When skipCache is
	// true the implementation must recompute rather than trust a cached
	// value (used after a voidance propagation may have invalidated it).
	BestBlockTips(skipCache bool) ([]dag.Hash, error)

	// UpdateBestBlockTipsCache replaces the cached best-tip set. A nil
	// slice invalidates the cache without setting a new value.
	UpdateBestBlockTipsCache(tips []dag.Hash) error

	// HeightIndex exposes the best-chain height index.
	HeightIndex() HeightIndex

	// TransactionsThatBecameInvalid returns mempool transactions that no
	// longer have a valid confirmation path after a tip regression.
	TransactionsThatBecameInvalid() ([]dag.Hash, error)

	// RemoveRecords deletes records (and their metadata) from Storage
	// entirely — the one case records are ever deleted, per spec.md §3
	// Lifecycles ("mempool transactions explicitly removed after reorg").
	RemoveRecords(hs []dag.Hash) error

	// VerificationChildren returns every record that names h as a
	// parent, i.e. h's verifiers. Used by the Walker to traverse the
	// verification DAG forward (child-to-parent edges reversed).
	VerificationChildren(h dag.Hash) ([]dag.Hash, error)
}

// HeightIndex is the best-chain height index named in spec.md §6.
type HeightIndex interface {
	// GetHeightTip returns the current best-chain height and its tip hash.
	GetHeightTip() (height uint64, tip dag.Hash, err error)

	// AddNew records a new (height, hash) pair on the current best chain.
	AddNew(height uint64, h dag.Hash) error

	// UpdateNewChain replaces the height index's chain membership to
	// match the chain ending at block, walking back through block
	// parents as far as the implementation needs to reconcile.
	UpdateNewChain(block dag.Hash) error
}
