package dag

// Metadata holds the mutable consensus state carried alongside an
// otherwise-immutable Record. Every field here is written exclusively by
// the consensus core during an update; nothing else in the system may
// mutate it.
type Metadata struct {
	Hash Hash

	// VoidedBy is the set of record hashes causing this record to be
	// voided. Empty/nil means executed.
	VoidedBy HashSet

	// ConflictWith holds, for transactions, the other transactions that
	// share at least one spent input with this one. It is ordered
	// (arrival order matters for tie-break semantics), so it is a slice,
	// not a HashSet, even though membership checks are common.
	ConflictWith []Hash

	// Twins holds the subset of ConflictWith with identical sorted
	// input/output multisets.
	Twins HashSet

	// SpentOutputs maps this record's output index to the ordered list
	// of spender transaction hashes (arrival order, never sorted).
	SpentOutputs map[uint32][]Hash

	// FirstBlock is the hash of the first best-chain block that
	// confirms this transaction; the zero Hash means unconfirmed.
	// Transaction-only.
	FirstBlock Hash

	// Score is the log-weight of the sub-DAG behind this block.
	// Block-only; immutable once set (Invariant 5).
	Score     float64
	scoreSet  bool

	// AccumulatedWeight is the log-sum of weights of records that
	// verify or spend this record.
	AccumulatedWeight float64

	// Height is this block's best-chain height. Block-only.
	Height uint64

	// Children is the set of child-block hashes. Block-only.
	Children HashSet
}

// NewMetadata returns zero-value metadata for a freshly-seen record.
func NewMetadata(h Hash) *Metadata {
	return &Metadata{
		Hash:         h,
		VoidedBy:     make(HashSet),
		Twins:        make(HashSet),
		SpentOutputs: make(map[uint32][]Hash),
		Children:     make(HashSet),
	}
}

// IsExecuted reports whether the record is currently executed (not voided).
func (m *Metadata) IsExecuted() bool {
	return m.VoidedBy.Len() == 0
}

// IsVoided reports whether the record is currently voided.
func (m *Metadata) IsVoided() bool {
	return m.VoidedBy.Len() > 0
}

// IsSelfVoided reports whether the record's own hash is the sole entry
// in voided_by (the "self-voided, nothing else" state check_conflicts
// looks for).
func (m *Metadata) IsSelfVoided() bool {
	return m.VoidedBy.Len() == 1 && m.VoidedBy.Has(m.Hash)
}

// ScoreSet reports whether Score has ever been computed, enforcing
// Invariant 5 (immutable score) at the call sites that assign it.
func (m *Metadata) ScoreSet() bool {
	return m.scoreSet
}

// SetScore records the score on first computation. Callers are
// responsible for checking ScoreSet and comparing within WEIGHT_TOL on
// recomputation before calling this again.
func (m *Metadata) SetScore(s float64) {
	m.Score = s
	m.scoreSet = true
}

// AppendSpender appends h to the spender list for output index idx,
// preserving arrival order (spec.md §9: "spent_by lists, not sets").
func (m *Metadata) AppendSpender(idx uint32, h Hash) {
	m.SpentOutputs[idx] = append(m.SpentOutputs[idx], h)
}

// Spenders returns the ordered spender list for output index idx.
func (m *Metadata) Spenders(idx uint32) []Hash {
	return m.SpentOutputs[idx]
}

// AppendConflict appends h to ConflictWith if not already present,
// preserving arrival order.
func (m *Metadata) AppendConflict(h Hash) {
	for _, c := range m.ConflictWith {
		if c == h {
			return
		}
	}
	m.ConflictWith = append(m.ConflictWith, h)
}

// HasConflict reports whether h is already in ConflictWith.
func (m *Metadata) HasConflict(h Hash) bool {
	for _, c := range m.ConflictWith {
		if c == h {
			return true
		}
	}
	return false
}

// Clone returns a deep-enough copy of m for callers that need to mutate
// a working copy without touching Storage's resident copy, or to keep a
// snapshot of it (the idempotence test compares against such a snapshot).
func (m *Metadata) Clone() *Metadata {
	c := &Metadata{
		Hash:              m.Hash,
		VoidedBy:          m.VoidedBy.Clone(),
		ConflictWith:      append([]Hash(nil), m.ConflictWith...),
		Twins:             m.Twins.Clone(),
		SpentOutputs:      make(map[uint32][]Hash, len(m.SpentOutputs)),
		FirstBlock:        m.FirstBlock,
		Score:             m.Score,
		scoreSet:          m.scoreSet,
		AccumulatedWeight: m.AccumulatedWeight,
		Height:            m.Height,
		Children:          m.Children.Clone(),
	}
	for idx, spenders := range m.SpentOutputs {
		c.SpentOutputs[idx] = append([]Hash(nil), spenders...)
	}
	return c
}
