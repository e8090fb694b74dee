package consensus

import "github.com/rawblock/dag-consensus/pkg/dag"

// WalkOptions selects which sub-DAG(s) a Walker traverses and in which
// direction, mirroring the Walker collaborator of spec.md §6
// (BFSWalk(storage, is_dag_verifications, is_dag_funds, is_left_to_right)).
type WalkOptions struct {
	// Verification includes verification-DAG edges (child -> parent).
	Verification bool
	// Funds includes funds-DAG edges (spender -> spent).
	Funds bool
	// Forward walks from a record towards its verifiers/spenders
	// (descendants); false walks towards its parents/spent records
	// (ancestors). This is "is_left_to_right" from spec.md §6.
	Forward bool
	// SkipRoot excludes the start hash itself from the walk's output.
	SkipRoot bool
}

// Walker is an explicit-queue BFS over Storage with subtree pruning, per
// spec.md §9 ("implement as an explicit queue ... not recursive calls,
// to keep stack depth bounded for wide DAGs").
type Walker struct {
	storage Storage
	opts    WalkOptions

	queue   []dag.Hash
	visited map[dag.Hash]bool

	pending    dag.Hash
	hasPending bool
	skipping   bool
	err        error
}

// BFSWalk starts a walk from start according to opts.
func BFSWalk(storage Storage, start dag.Hash, opts WalkOptions) *Walker {
	w := &Walker{
		storage: storage,
		opts:    opts,
		visited: make(map[dag.Hash]bool),
	}
	w.visited[start] = true
	if opts.SkipRoot {
		if err := w.enqueueNeighbors(start); err != nil {
			// Neighbor enumeration at construction time only fails on a
			// corrupt Storage; surface it the same way any other mid-walk
			// failure would (callers check Err() after the loop exits).
			w.err = err
		}
	} else {
		w.queue = append(w.queue, start)
	}
	return w
}

// Next advances the walk, returning the next hash and true, or the zero
// value and false once the walk is exhausted (or failed — check Err()).
func (w *Walker) Next() (dag.Hash, bool) {
	if w.hasPending && !w.skipping {
		if err := w.enqueueNeighbors(w.pending); err != nil {
			w.err = err
			w.queue = nil
		}
	}
	w.hasPending = false
	w.skipping = false
	if w.err != nil || len(w.queue) == 0 {
		return dag.Hash{}, false
	}
	h := w.queue[0]
	w.queue = w.queue[1:]
	w.pending = h
	w.hasPending = true
	return h, true
}

// SkipNeighbors prunes the subtree rooted at the hash most recently
// returned by Next: its neighbors are never enqueued.
func (w *Walker) SkipNeighbors() {
	w.skipping = true
}

// Err returns the first error encountered while enumerating neighbors, if any.
func (w *Walker) Err() error {
	return w.err
}

func (w *Walker) enqueueNeighbors(h dag.Hash) error {
	neighbors, err := w.neighborsOf(h)
	if err != nil {
		return err
	}
	for _, n := range neighbors {
		if w.visited[n] {
			continue
		}
		w.visited[n] = true
		w.queue = append(w.queue, n)
	}
	return nil
}

func (w *Walker) neighborsOf(h dag.Hash) ([]dag.Hash, error) {
	var out []dag.Hash

	if w.opts.Verification {
		if w.opts.Forward {
			children, err := w.storage.VerificationChildren(h)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		} else {
			rec, err := w.storage.GetRecord(h)
			if err != nil {
				return nil, err
			}
			out = append(out, rec.Parents...)
		}
	}

	if w.opts.Funds {
		if w.opts.Forward {
			meta, err := w.storage.GetMetadata(h)
			if err != nil {
				return nil, err
			}
			for idx := range meta.SpentOutputs {
				out = append(out, meta.Spenders(idx)...)
			}
		} else {
			rec, err := w.storage.GetRecord(h)
			if err != nil {
				return nil, err
			}
			for _, in := range rec.Inputs {
				out = append(out, in.PrevHash)
			}
		}
	}

	return out, nil
}
