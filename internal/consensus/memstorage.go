package consensus

import (
	"fmt"
	"sync"

	"github.com/rawblock/dag-consensus/pkg/dag"
)

// MemStorage is an in-memory Storage implementation used by tests, the
// simulator harness, and as the default backend for small deployments.
// It has no teacher analogue (the teacher has no in-memory store) and is
// built directly from spec.md §6's Storage contract.
type MemStorage struct {
	mu sync.Mutex

	records  map[dag.Hash]*dag.Record
	metadata map[dag.Hash]*dag.Metadata

	// verifChildren maps a record to every record naming it as a parent
	// (the reverse of Record.Parents), used by the Walker to traverse
	// the verification DAG forward.
	verifChildren map[dag.Hash][]dag.Hash

	indexed map[dag.Hash]bool

	bestTips      []dag.Hash
	bestTipsValid bool

	height    uint64
	heightTip dag.Hash

	// mempool tracks unconfirmed transactions (FirstBlock unset), the
	// candidate set TransactionsThatBecameInvalid scans after a tip
	// regression.
	mempool map[dag.Hash]bool
}

// NewMemStorage returns an empty store.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		records:       make(map[dag.Hash]*dag.Record),
		metadata:      make(map[dag.Hash]*dag.Metadata),
		verifChildren: make(map[dag.Hash][]dag.Hash),
		indexed:       make(map[dag.Hash]bool),
		mempool:       make(map[dag.Hash]bool),
	}
}

// AddRecord registers a new, never-before-seen record and seeds its
// metadata. This is the ingestion step the consensus core itself never
// performs (records arrive already validated by the out-of-scope
// Verifier); Driver.Update assumes GetRecord/GetMetadata already resolve
// for r and every one of its ancestors.
func (m *MemStorage) AddRecord(r *dag.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[r.Hash]; exists {
		return fmt.Errorf("record %s already present", r.Hash)
	}
	for _, p := range r.Parents {
		if _, ok := m.records[p]; !ok {
			return fmt.Errorf("record %s names unknown parent %s", r.Hash, p)
		}
	}

	m.records[r.Hash] = r
	m.metadata[r.Hash] = dag.NewMetadata(r.Hash)
	m.indexed[r.Hash] = true

	for _, p := range r.Parents {
		m.verifChildren[p] = append(m.verifChildren[p], r.Hash)
	}
	if r.IsBlock() && !r.IsGenesis {
		parentMeta := m.metadata[r.BlockParent]
		parentMeta.Children.Add(r.Hash)
	}
	if r.IsTransaction() {
		m.mempool[r.Hash] = true
	}
	return nil
}

func (m *MemStorage) GetRecord(h dag.Hash) (*dag.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[h]
	if !ok {
		return nil, fmt.Errorf("unknown record %s", h)
	}
	return r, nil
}

func (m *MemStorage) GetMetadata(h dag.Hash) (*dag.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.metadata[h]
	if !ok {
		return nil, fmt.Errorf("unknown metadata for %s", h)
	}
	return md, nil
}

func (m *MemStorage) SaveMetadata(h dag.Hash, md *dag.Metadata, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[h] = md
	if r, ok := m.records[h]; ok && r.IsTransaction() {
		if md.FirstBlock.IsZero() {
			m.mempool[h] = true
		} else {
			delete(m.mempool, h)
		}
	}
	return nil
}

func (m *MemStorage) RemoveFromIndexes(h dag.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed[h] = false
	m.bestTipsValid = false
	return nil
}

func (m *MemStorage) AddToIndexes(h dag.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed[h] = true
	m.bestTipsValid = false
	return nil
}

func (m *MemStorage) VerificationChildren(h dag.Hash) ([]dag.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dag.Hash(nil), m.verifChildren[h]...), nil
}

func (m *MemStorage) BestBlockTips(skipCache bool) ([]dag.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !skipCache && m.bestTipsValid {
		return append([]dag.Hash(nil), m.bestTips...), nil
	}
	// A tip is a leaf of the block tree (no child block yet) that has
	// already been scored, regardless of its current voided status: a
	// tie between equally-weighted forks keeps both voided heads cached
	// as tips until a later block breaks the tie, per spec.md §8
	// scenario 3. A leaf still missing its score is the block currently
	// being processed by the in-flight Update call, not yet part of any
	// snapshot a concurrent read should observe.
	var tips []dag.Hash
	for h, r := range m.records {
		if !r.IsBlock() {
			continue
		}
		md := m.metadata[h]
		if md.Children.Len() == 0 && md.ScoreSet() {
			tips = append(tips, h)
		}
	}
	m.bestTips = tips
	m.bestTipsValid = true
	return append([]dag.Hash(nil), tips...), nil
}

func (m *MemStorage) UpdateBestBlockTipsCache(tips []dag.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tips == nil {
		m.bestTipsValid = false
		return nil
	}
	m.bestTips = append([]dag.Hash(nil), tips...)
	m.bestTipsValid = true
	return nil
}

func (m *MemStorage) HeightIndex() HeightIndex {
	return m
}

func (m *MemStorage) GetHeightTip() (uint64, dag.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, m.heightTip, nil
}

func (m *MemStorage) AddNew(height uint64, h dag.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = height
	m.heightTip = h
	return nil
}

func (m *MemStorage) UpdateNewChain(block dag.Hash) error {
	m.mu.Lock()
	md, ok := m.metadata[block]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown block %s", block)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = md.Height
	m.heightTip = block
	return nil
}

// TransactionsThatBecameInvalid scans the mempool (unconfirmed
// transactions) for any whose spent input now points to a voided
// record: a double-spend that only became possible after the chain
// reorganized out from under it.
func (m *MemStorage) TransactionsThatBecameInvalid() ([]dag.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var invalid []dag.Hash
	for h := range m.mempool {
		r, ok := m.records[h]
		if !ok {
			continue
		}
		for _, in := range r.Inputs {
			pm, ok := m.metadata[in.PrevHash]
			if !ok {
				continue
			}
			if pm.IsVoided() {
				invalid = append(invalid, h)
				break
			}
		}
	}
	return invalid, nil
}

func (m *MemStorage) RemoveRecords(hs []dag.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hs {
		delete(m.records, h)
		delete(m.metadata, h)
		delete(m.indexed, h)
		delete(m.mempool, h)
	}
	return nil
}
