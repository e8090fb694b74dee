package consensus

import (
	"github.com/google/uuid"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

// Context is the ephemeral per-update object spec.md §9 calls for: every
// algorithm call takes one explicitly rather than reaching into global
// mutable state. It accumulates the "affected" set of records touched
// during the update, which the driver uses to decide what to publish
// once the update completes (metadata is persisted as each record is
// marked, by MarkAffected).
type Context struct {
	// RunID correlates log lines for a single update, the way the
	// teacher tags investigation cases with a uuid.
	RunID uuid.UUID

	storage  Storage
	affected map[dag.Hash]struct{}
	order    []dag.Hash // preserves first-touch order for deterministic test output
}

// NewContext builds a fresh Context bound to storage for one Driver.Update call.
func NewContext(storage Storage) *Context {
	return &Context{
		RunID:    uuid.New(),
		storage:  storage,
		affected: make(map[dag.Hash]struct{}),
	}
}

// MarkAffected records h as touched by this update and persists its
// metadata through Storage. Every metadata mutator in BlockConsensus and
// TransactionConsensus calls this immediately after changing a record's
// Metadata, per spec.md §4.2 ("save also marks the record in the
// Context's affected set").
func (c *Context) MarkAffected(h dag.Hash, m *dag.Metadata) {
	if _, seen := c.affected[h]; !seen {
		c.order = append(c.order, h)
	}
	c.affected[h] = struct{}{}
	c.storage.SaveMetadata(h, m, true)
}

// Affected returns the touched hashes in first-touch order.
func (c *Context) Affected() []dag.Hash {
	return append([]dag.Hash(nil), c.order...)
}
