package consensus

import (
	"fmt"
	"log"
	"sync"

	"github.com/rawblock/dag-consensus/pkg/dag"
)

// Topic names for the PubSub notifications spec.md §6 names.
const (
	TopicTxUpdate  = "CONSENSUS_TX_UPDATE"
	TopicTxRemoved = "CONSENSUS_TX_REMOVED"
)

// Publisher is the minimal surface Driver needs from a topic bus,
// matching spec.md §6's PubSub contract (publish(topic, **payload)).
type Publisher interface {
	Publish(topic string, payload map[string]any)
}

// Driver is the ConsensusDriver (C6): the single entry point per
// newly-attached record.
type Driver struct {
	storage Storage
	engine  *Engine
	pub     Publisher
	mu      sync.Mutex
}

// NewDriver builds a Driver bound to storage, engine, and a publisher.
func NewDriver(storage Storage, engine *Engine, pub Publisher) *Driver {
	return &Driver{storage: storage, engine: engine, pub: pub}
}

// Update implements spec.md §4.6. All consensus updates are serialized
// per spec.md §5 ("single-threaded cooperative per node"); Update holds
// a mutex for its whole body so two updates never interleave against
// the same Storage.
func (d *Driver) Update(r *dag.Record) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			switch e := rec.(type) {
			case *ProgrammerError:
				log.Fatalf("[consensus] fatal, DAG is corrupt: %v", e)
			case *PreconditionFailure:
				log.Fatalf("[consensus] fatal, bad input: %v", e)
			default:
				panic(rec)
			}
		}
	}()

	if r.Weight <= 0 {
		precondition("record %s has non-positive weight %v", r.Hash, r.Weight)
	}
	if !r.IsBlock() && !r.IsTransaction() {
		precondition("record %s is neither a block nor a transaction", r.Hash)
	}

	beforeHeight, _, err := d.storage.HeightIndex().GetHeightTip()
	if err != nil {
		return fmt.Errorf("reading height tip before update: %w", err)
	}

	ctx := NewContext(d.storage)
	if r.IsBlock() {
		d.engine.UpdateBlock(ctx, r)
	} else {
		d.engine.UpdateTransaction(ctx, r)
	}

	afterHeight, _, err := d.storage.HeightIndex().GetHeightTip()
	if err != nil {
		return fmt.Errorf("reading height tip after update: %w", err)
	}

	if afterHeight < beforeHeight {
		invalid, err := d.storage.TransactionsThatBecameInvalid()
		if err != nil {
			return fmt.Errorf("listing transactions invalidated by tip regression: %w", err)
		}
		if len(invalid) > 0 {
			if err := d.storage.RemoveRecords(invalid); err != nil {
				return fmt.Errorf("removing invalidated transactions: %w", err)
			}
			for _, h := range invalid {
				d.pub.Publish(TopicTxRemoved, map[string]any{"tx_hash": h.String()})
			}
		}
	}

	for _, h := range ctx.Affected() {
		rec, err := d.storage.GetRecord(h)
		if err != nil {
			return fmt.Errorf("reloading affected record %s for publication: %w", h, err)
		}
		d.pub.Publish(TopicTxUpdate, map[string]any{"tx": rec})
	}

	return nil
}
