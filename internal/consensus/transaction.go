package consensus

import (
	"bytes"
	"runtime/debug"
	"sort"

	"github.com/rawblock/dag-consensus/pkg/dag"
)

// UpdateTransaction implements spec.md §4.5's "Update on new transaction t".
func (e *Engine) UpdateTransaction(ctx *Context, t *dag.Record) {
	e.markInputsAsUsed(ctx, t)
	e.updateVoidedInfoTx(ctx, t)
	e.setConflictTwins(ctx, t)
}

// markInputsAsUsed implements spec.md §4.5 step 1.
func (e *Engine) markInputsAsUsed(ctx *Context, t *dag.Record) {
	tMeta := e.mustMeta(t.Hash)
	touched := false

	for _, in := range t.Inputs {
		prevMeta := e.mustMeta(in.PrevHash)
		spenders := append([]dag.Hash(nil), prevMeta.Spenders(in.Index)...)
		for _, h := range spenders {
			if h == t.Hash {
				fatalf("transaction %s already recorded as a spender of %s:%d", t.Hash, in.PrevHash, in.Index)
			}
		}

		if len(spenders) > 0 {
			tMeta.VoidedBy = dag.NewHashSet(t.Hash)
			touched = true
			for _, h := range spenders {
				tMeta.AppendConflict(h)
			}
		}

		for _, h := range spenders {
			hMeta := e.mustMeta(h)
			hMeta.AppendConflict(t.Hash)
			ctx.MarkAffected(h, hMeta)
		}

		prevMeta.AppendSpender(in.Index, t.Hash)
		ctx.MarkAffected(in.PrevHash, prevMeta)
	}

	if touched {
		ctx.MarkAffected(t.Hash, tMeta)
	}
}

// updateVoidedInfoTx implements spec.md §4.5 step 2.
func (e *Engine) updateVoidedInfoTx(ctx *Context, t *dag.Record) {
	tMeta := e.mustMeta(t.Hash)

	v := make(dag.HashSet)
	for _, p := range t.TransactionParents() {
		pm := e.mustMeta(p)
		filtered := e.soft.Filter(t.Hash, pm.VoidedBy.Clone(), func(h dag.Hash) dag.HashSet { return e.mustMeta(h).VoidedBy })
		v = v.Union(filtered)
	}
	// Verification-edge propagation is soft_filter'd above, so the
	// sentinel can only still be absent here; a funds edge (below) is
	// the one path that is allowed to carry it, when an input spends a
	// soft-voided record.
	if v.Has(dag.SoftVoidedID) {
		fatalf("soft-void sentinel reached %s via a verification parent before being explicitly injected", t.Hash)
	}
	for _, in := range t.Inputs {
		sm := e.mustMeta(in.PrevHash)
		v = v.Union(sm.VoidedBy.Clone())
	}

	for h := range v {
		if h == dag.SoftVoidedID {
			continue
		}
		m := e.mustMeta(h)
		m.AccumulatedWeight = SumWeights(m.AccumulatedWeight, t.Weight)
		ctx.MarkAffected(h, m)
	}

	if e.soft.IsSoftVoided(t.Hash) {
		v.Add(dag.SoftVoidedID)
		v.Add(t.Hash)
	}
	if len(tMeta.ConflictWith) > 0 {
		v.Add(t.Hash)
	}

	if v.Len() > 0 {
		tMeta.VoidedBy = v
		ctx.MarkAffected(t.Hash, tMeta)
		if err := e.storage.RemoveFromIndexes(t.Hash); err != nil {
			fatalf("removing %s from indexes: %v", t.Hash, err)
		}
	}

	for h := range v {
		if h == dag.SoftVoidedID || h == t.Hash {
			continue
		}
		if e.mustRecord(h).IsTransaction() {
			e.checkConflicts(ctx, h)
		}
	}

	for _, h := range tMeta.ConflictWith {
		if e.mustMeta(h).IsVoided() {
			e.markTxAsVoided(ctx, h)
		}
	}

	if e.mustMeta(t.Hash).IsSelfVoided() {
		e.checkConflicts(ctx, t.Hash)
	}

	e.assertValidConsensus(t.Hash)
}

// setConflictTwins implements spec.md §4.5 step 3.
func (e *Engine) setConflictTwins(ctx *Context, t *dag.Record) {
	tMeta := e.mustMeta(t.Hash)
	touched := false

	for _, h := range tMeta.ConflictWith {
		if h == t.Hash || tMeta.Twins.Has(h) {
			continue
		}
		other := e.mustRecord(h)
		if !sameInputsAndOutputs(t, other) {
			continue
		}
		tMeta.Twins.Add(h)
		touched = true

		oMeta := e.mustMeta(h)
		oMeta.Twins.Add(t.Hash)
		ctx.MarkAffected(h, oMeta)
	}

	if touched {
		ctx.MarkAffected(t.Hash, tMeta)
	}
}

func sameInputsAndOutputs(a, b *dag.Record) bool {
	if len(a.Inputs) != len(b.Inputs) || len(a.Outputs) != len(b.Outputs) {
		return false
	}

	ai := append([]dag.Input(nil), a.Inputs...)
	bi := append([]dag.Input(nil), b.Inputs...)
	sort.Slice(ai, func(i, j int) bool { return inputLess(ai[i], ai[j]) })
	sort.Slice(bi, func(i, j int) bool { return inputLess(bi[i], bi[j]) })
	for i := range ai {
		if ai[i] != bi[i] {
			return false
		}
	}

	ao := append([]dag.Output(nil), a.Outputs...)
	bo := append([]dag.Output(nil), b.Outputs...)
	sort.Slice(ao, func(i, j int) bool { return outputLess(ao[i], ao[j]) })
	sort.Slice(bo, func(i, j int) bool { return outputLess(bo[i], bo[j]) })
	for i := range ao {
		if ao[i].Value != bo[i].Value || !bytes.Equal(ao[i].Script, bo[i].Script) {
			return false
		}
	}
	return true
}

func inputLess(a, b dag.Input) bool {
	if a.PrevHash != b.PrevHash {
		return bytes.Compare(a.PrevHash[:], b.PrevHash[:]) < 0
	}
	return a.Index < b.Index
}

func outputLess(a, b dag.Output) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return bytes.Compare(a.Script, b.Script) < 0
}

// checkConflicts implements spec.md §4.5's "Conflict resolution".
func (e *Engine) checkConflicts(ctx *Context, t dag.Hash) {
	tMeta := e.mustMeta(t)
	if !tMeta.IsSelfVoided() {
		return
	}
	conflicts := append([]dag.Hash(nil), tMeta.ConflictWith...)

	// candidates excludes conflicts voided by some hash other than
	// themselves: those are dead weight and must never participate in
	// the comparison below, per spec.md §4.5 and consensus.py's own
	// `candidates = {c for c in conflict_with if not c.voided_by or
	// c.voided_by == {c}}`.
	var candidates []dag.Hash
	for _, c := range conflicts {
		cMeta := e.mustMeta(c)
		if cMeta.IsVoided() && !cMeta.IsSelfVoided() {
			continue
		}
		candidates = append(candidates, c)
	}

	isLocalBest := true
	for _, c := range candidates {
		cMeta := e.mustMeta(c)
		if !cMeta.IsSelfVoided() {
			continue
		}
		if e.cmp(cMeta.AccumulatedWeight, tMeta.AccumulatedWeight) == Greater {
			isLocalBest = false
			break
		}
	}

	ties := false
	if isLocalBest {
		for _, c := range candidates {
			cMeta := e.mustMeta(c)
			if cMeta.IsSelfVoided() {
				continue
			}
			refreshed := e.recomputeAccumulatedWeight(c, tMeta.AccumulatedWeight)
			cMeta.AccumulatedWeight = refreshed
			ctx.MarkAffected(c, cMeta)
			switch e.cmp(refreshed, tMeta.AccumulatedWeight) {
			case Greater:
				isLocalBest = false
			case Tied:
				ties = true
			}
			if !isLocalBest {
				break
			}
		}
	}

	if !isLocalBest {
		return
	}

	for _, c := range conflicts {
		e.markTxAsVoided(ctx, c)
	}
	if !ties {
		e.markAsWinner(ctx, t)
	}
}

// recomputeAccumulatedWeight refreshes a candidate's accumulated weight
// by summing the weights of every record that verifies or spends it,
// stopping as soon as the running total compares decisively against
// stopAt — check_conflicts only needs the comparison, not an exact
// figure past that point.
func (e *Engine) recomputeAccumulatedWeight(h dag.Hash, stopAt float64) float64 {
	total := 0.0
	w := BFSWalk(e.storage, h, WalkOptions{Verification: true, Funds: true, Forward: true, SkipRoot: true})
	for {
		n, ok := w.Next()
		if !ok {
			break
		}
		total = SumWeights(total, e.mustRecord(n).Weight)
		if e.cmp(total, stopAt) != Less {
			break
		}
	}
	if err := w.Err(); err != nil {
		fatalf("recomputing accumulated weight for %s: %v", h, err)
	}
	return total
}

// markAsWinner implements spec.md §4.5's "Winner/voided transitions".
func (e *Engine) markAsWinner(ctx *Context, t dag.Hash) {
	meta := e.mustMeta(t)
	if len(meta.ConflictWith) == 0 {
		precondition("mark_as_winner called on %s with an empty conflict_with; call chain:\n%s", t, debug.Stack())
	}
	if !meta.IsSelfVoided() {
		fatalf("mark_as_winner called on %s whose voided_by is not exactly {self}", t)
	}
	if e.soft.IsSoftVoided(t) {
		fatalf("mark_as_winner called on soft-voided transaction %s", t)
	}
	e.removeVoidedByTx(ctx, t, t)
}

// markTxAsVoided is idempotent: it adds t's own hash to its voided_by.
func (e *Engine) markTxAsVoided(ctx *Context, t dag.Hash) {
	e.addVoidedByTx(ctx, t, t)
}

// addVoidedByTx implements spec.md §4.5's BFS-based add_voided_by for
// transactions: it walks forward through the funds DAG and, unless t is
// soft-voided, through the verification DAG too.
func (e *Engine) addVoidedByTx(ctx *Context, t dag.Hash, h dag.Hash) bool {
	opts := WalkOptions{Funds: true, Forward: true}
	if !e.soft.IsSoftVoided(t) {
		opts.Verification = true
	}
	w := BFSWalk(e.storage, t, opts)

	rootChanged := false
	var toRecheck []dag.Hash

	for {
		u, ok := w.Next()
		if !ok {
			break
		}
		uMeta := e.mustMeta(u)
		if uMeta.VoidedBy.Has(h) {
			w.SkipNeighbors()
			continue
		}

		if e.mustRecord(u).IsBlock() {
			e.markBlockAsVoided(ctx, u, false)
			if err := e.storage.UpdateBestBlockTipsCache(nil); err != nil {
				fatalf("invalidating best-tip cache: %v", err)
			}
		}

		if u != t && len(uMeta.ConflictWith) > 0 && uMeta.IsExecuted() {
			toRecheck = append(toRecheck, uMeta.ConflictWith...)
		}

		uMeta.VoidedBy.Add(h)
		if u == t {
			rootChanged = true
		}
		hasConflicts := len(uMeta.ConflictWith) > 0
		ctx.MarkAffected(u, uMeta)
		if hasConflicts {
			e.markTxAsVoided(ctx, u)
			uMeta = e.mustMeta(u)
			uMeta.AccumulatedWeight = e.recomputeAccumulatedWeight(u, uMeta.AccumulatedWeight)
			ctx.MarkAffected(u, uMeta)
		}
		if err := e.storage.RemoveFromIndexes(u); err != nil {
			fatalf("removing %s from indexes: %v", u, err)
		}
	}
	if err := w.Err(); err != nil {
		fatalf("addVoidedByTx BFS from %s: %v", t, err)
	}

	for _, c := range toRecheck {
		e.checkConflicts(ctx, c)
	}
	return rootChanged
}

// removeVoidedByTx implements spec.md §4.5's symmetric BFS removal.
func (e *Engine) removeVoidedByTx(ctx *Context, t dag.Hash, h dag.Hash) bool {
	w := BFSWalk(e.storage, t, WalkOptions{Verification: true, Funds: true, Forward: true})

	rootChanged := false
	var toRecheck []dag.Hash

	for {
		u, ok := w.Next()
		if !ok {
			break
		}
		uMeta := e.mustMeta(u)
		if !uMeta.VoidedBy.Has(h) {
			w.SkipNeighbors()
			continue
		}

		if e.mustRecord(u).IsBlock() {
			e.removeVoidedByBlock(ctx, u, h)
			continue
		}

		uMeta.VoidedBy.Remove(h)
		if u == t {
			rootChanged = true
		}
		becameEmpty := uMeta.VoidedBy.Len() == 0
		becameSelfOnly := uMeta.VoidedBy.Len() == 1 && uMeta.VoidedBy.Has(u)
		ctx.MarkAffected(u, uMeta)
		if becameEmpty {
			if err := e.storage.AddToIndexes(u); err != nil {
				fatalf("re-indexing %s: %v", u, err)
			}
		}
		if becameSelfOnly {
			toRecheck = append(toRecheck, u)
		}
	}
	if err := w.Err(); err != nil {
		fatalf("removeVoidedByTx BFS from %s: %v", t, err)
	}

	for _, c := range toRecheck {
		e.checkConflicts(ctx, c)
	}
	return rootChanged
}

// assertValidConsensus enforces Invariant 4 (exclusive execution among
// conflicts) for t's conflict set. It is called once per transaction
// update, as the last step of updateVoidedInfoTx, and is always on (not
// gated by SlowAsserts); other voided_by mutations are not followed by
// this check.
func (e *Engine) assertValidConsensus(t dag.Hash) {
	tMeta := e.mustMeta(t)
	if len(tMeta.ConflictWith) == 0 {
		return
	}
	executed := 0
	if tMeta.IsExecuted() {
		executed++
	}
	for _, c := range tMeta.ConflictWith {
		if e.mustMeta(c).IsExecuted() {
			executed++
		}
	}
	if executed > 1 {
		fatalf("invariant 4 violated: %d executed members in the conflict set rooted at %s", executed, t)
	}
}
