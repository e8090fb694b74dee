package consensus

import "github.com/rawblock/dag-consensus/pkg/dag"

// UpdateBlock implements spec.md §4.4's "Update on new block b".
func (e *Engine) UpdateBlock(ctx *Context, b *dag.Record) {
	if b.IsGenesis {
		e.markGenesisBest(ctx, b)
		return
	}

	v := e.unionVoidedByFromParents(b)
	if v.Has(b.Hash) {
		fatalf("block %s voided by the union of its own parents' voided_by", b.Hash)
	}
	for h := range v {
		m := e.mustMeta(h)
		m.AccumulatedWeight = SumWeights(m.AccumulatedWeight, b.Weight)
		ctx.MarkAffected(h, m)
		if e.mustRecord(h).IsTransaction() {
			e.checkConflicts(ctx, h)
		}
	}

	parentMeta := e.mustMeta(b.BlockParent)
	isHead := parentMeta.Children.Len() == 1
	isOnBest := parentMeta.IsExecuted()

	if isHead && isOnBest {
		e.updateScoreAndMarkBestChainIfPossible(ctx, b)
		if meta := e.mustMeta(b.Hash); meta.IsExecuted() {
			if err := e.storage.HeightIndex().AddNew(meta.Height, b.Hash); err != nil {
				fatalf("height index add for %s: %v", b.Hash, err)
			}
			e.mustUpdateTips(ctx, []dag.Hash{b.Hash})
		}
		return
	}

	e.markBlockAsVoided(ctx, b.Hash, true)

	tips, err := e.storage.BestBlockTips(true)
	if err != nil {
		fatalf("best tips lookup: %v", err)
	}
	if len(tips) == 0 {
		fatalf("no best tips available while scoring side-chain block %s", b.Hash)
	}
	bestScore := e.mustMeta(tips[0]).Score
	executedTips := 0
	for _, tip := range tips {
		tm := e.mustMeta(tip)
		if e.cmp(tm.Score, bestScore) != Tied {
			fatalf("best tips disagree on score beyond tolerance: %s vs %s", tips[0], tip)
		}
		if tm.IsExecuted() {
			executedTips++
		}
	}
	if executedTips > 1 {
		fatalf("more than one non-voided best tip before processing %s", b.Hash)
	}

	score := e.scoreBlock(ctx, b, false)

	switch e.cmp(score, bestScore) {
	case Less:
		e.updateVoidedByFromParents(ctx, b)
	default:
		e.addVoidedByToMultipleChains(ctx, b.Hash, tips)
		if e.cmp(score, bestScore) == Greater {
			e.updateScoreAndMarkBestChainIfPossible(ctx, b)
			if meta := e.mustMeta(b.Hash); meta.IsExecuted() {
				if err := e.storage.HeightIndex().UpdateNewChain(b.Hash); err != nil {
					fatalf("height index reorg to %s: %v", b.Hash, err)
				}
				e.mustUpdateTips(ctx, []dag.Hash{b.Hash})
			}
		} else {
			newTips, err := e.storage.BestBlockTips(true)
			if err != nil {
				fatalf("best tips lookup after tie: %v", err)
			}
			e.mustUpdateTips(ctx, newTips)
		}
	}
}

func (e *Engine) mustUpdateTips(ctx *Context, tips []dag.Hash) {
	if err := e.storage.UpdateBestBlockTipsCache(tips); err != nil {
		fatalf("best-tip cache update: %v", err)
	}
}

func (e *Engine) markGenesisBest(ctx *Context, b *dag.Record) {
	meta := e.mustMeta(b.Hash)
	meta.SetScore(b.Weight)
	meta.Height = 0
	ctx.MarkAffected(b.Hash, meta)
	if err := e.storage.HeightIndex().AddNew(0, b.Hash); err != nil {
		fatalf("height index add for genesis %s: %v", b.Hash, err)
	}
	e.mustUpdateTips(ctx, []dag.Hash{b.Hash})
}

// scoreBlock computes score(b) by walking, from b's transaction
// parents, every verification-reachable transaction not already
// confirmed by a block at or before newestTimestamp (the timestamp of
// b's block parent, the newest already-scored block in the chain).
// Converted to an explicit stack per spec.md §9.
func (e *Engine) scoreBlock(ctx *Context, b *dag.Record, markBest bool) float64 {
	parentMeta := e.mustMeta(b.BlockParent)
	if !parentMeta.ScoreSet() {
		fatalf("scoring %s: block parent %s has no score yet", b.Hash, b.BlockParent)
	}
	newestTimestamp := e.mustRecord(b.BlockParent).Timestamp

	total := SumWeights(b.Weight, parentMeta.Score)

	visited := make(map[dag.Hash]bool)
	stack := append([]dag.Hash(nil), b.TransactionParents()...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[h] {
			continue
		}
		visited[h] = true

		m := e.mustMeta(h)
		include := m.FirstBlock.IsZero()
		if !include {
			fb := e.mustRecord(m.FirstBlock)
			include = fb.Timestamp.After(newestTimestamp)
		}
		if !include {
			continue
		}

		r := e.mustRecord(h)
		total = SumWeights(total, r.Weight)
		if markBest {
			if !m.FirstBlock.IsZero() {
				fatalf("mark_as_best_chain: %s already has first_block set to %s", h, m.FirstBlock)
			}
			m.FirstBlock = b.Hash
			ctx.MarkAffected(h, m)
		}
		stack = append(stack, r.Parents...)
	}

	meta := e.mustMeta(b.Hash)
	if meta.ScoreSet() {
		if e.cmp(total, meta.Score) != Tied {
			fatalf("score recomputation for %s drifted: got %v want %v", b.Hash, total, meta.Score)
		}
	} else {
		meta.SetScore(total)
		meta.Height = parentMeta.Height + 1
		ctx.MarkAffected(b.Hash, meta)
	}
	return meta.Score
}

func (e *Engine) updateScoreAndMarkBestChainIfPossible(ctx *Context, b *dag.Record) {
	e.scoreBlock(ctx, b, true)
	e.removeVoidedByFromChain(ctx, b)

	if !e.updateVoidedByFromParents(ctx, b) {
		return
	}

	tips, err := e.storage.BestBlockTips(true)
	if err != nil {
		fatalf("best tips lookup while reconciling %s: %v", b.Hash, err)
	}
	if len(tips) == 0 {
		fatalf("no best tips available while reconciling %s", b.Hash)
	}

	var bestScore float64
	var bestHeads []dag.Hash
	for i, tip := range tips {
		tm := e.mustMeta(tip)
		switch {
		case i == 0:
			bestScore, bestHeads = tm.Score, []dag.Hash{tip}
		case e.cmp(tm.Score, bestScore) == Greater:
			bestScore, bestHeads = tm.Score, []dag.Hash{tip}
		case e.cmp(tm.Score, bestScore) == Tied:
			bestHeads = append(bestHeads, tip)
		}
	}

	e.addVoidedByToMultipleChains(ctx, bestHeads[0], []dag.Hash{b.Hash})

	if len(bestHeads) == 1 && bestHeads[0] != b.Hash {
		e.updateScoreAndMarkBestChainIfPossible(ctx, e.mustRecord(bestHeads[0]))
	}
}

func (e *Engine) removeVoidedByFromChain(ctx *Context, b *dag.Record) {
	cur := b
	for {
		meta := e.mustMeta(cur.Hash)
		if !meta.VoidedBy.Has(cur.Hash) {
			return
		}
		e.removeVoidedByBlock(ctx, cur.Hash, cur.Hash)
		if cur.BlockParent.IsZero() {
			return
		}
		cur = e.mustRecord(cur.BlockParent)
	}
}

// unionVoidedByFromParents implements spec.md §4.4 step 2 and the
// union_voided_by_from_parents helper it reuses in step 3 of
// update_score_and_mark_best_chain_if_possible.
func (e *Engine) unionVoidedByFromParents(b *dag.Record) dag.HashSet {
	out := make(dag.HashSet)
	for _, p := range b.Parents {
		pm := e.mustMeta(p)
		v := pm.VoidedBy.Clone()
		if p == b.BlockParent {
			v.Remove(p)
		}
		filtered := e.soft.Filter(b.Hash, v, func(h dag.Hash) dag.HashSet { return e.mustMeta(h).VoidedBy })
		out = out.Union(filtered)
	}
	return out
}

// updateVoidedByFromParents folds the parent-derived voided set into b
// itself and reports whether b ended up voided.
func (e *Engine) updateVoidedByFromParents(ctx *Context, b *dag.Record) bool {
	v := e.unionVoidedByFromParents(b)
	for h := range v {
		e.addVoidedByBlock(ctx, b.Hash, h)
	}
	return e.mustMeta(b.Hash).IsVoided()
}

// addVoidedByToMultipleChains implements spec.md §4.4's chain-voiding step:
// find the fork point behind reference, then void every block on each
// head's chain back to (but not past) that fork point.
func (e *Engine) addVoidedByToMultipleChains(ctx *Context, reference dag.Hash, heads []dag.Hash) {
	forkPoint := e.findFirstParentInBestChain(reference)

	for _, head := range heads {
		cur := e.mustRecord(head)
		for cur.Hash != forkPoint {
			meta := e.mustMeta(cur.Hash)
			if !meta.VoidedBy.Has(cur.Hash) {
				e.markBlockAsVoided(ctx, cur.Hash, false)
			}
			if cur.BlockParent.IsZero() {
				break
			}
			cur = e.mustRecord(cur.BlockParent)
		}
	}
}

// findFirstParentInBestChain walks backward via block-parent from
// reference until it reaches a block that is itself executed (on the
// best chain): the deepest common ancestor, i.e. the fork point.
//
//	best:  genesis - A - B - C (executed)
//	side:            \ B' - C' - reference
//
// walking back from reference hits C', B', then A — the fork point.
func (e *Engine) findFirstParentInBestChain(reference dag.Hash) dag.Hash {
	cur := reference
	for {
		meta := e.mustMeta(cur)
		if meta.IsExecuted() {
			return cur
		}
		rec := e.mustRecord(cur)
		if rec.BlockParent.IsZero() {
			fatalf("walked to genesis without finding a best-chain ancestor of %s", reference)
		}
		cur = rec.BlockParent
	}
}

// markBlockAsVoided implements spec.md §4.4's mark_as_voided for blocks.
func (e *Engine) markBlockAsVoided(ctx *Context, b dag.Hash, skipRemoveFirstBlockMarkers bool) {
	if !skipRemoveFirstBlockMarkers {
		e.removeFirstBlockMarkers(ctx, b)
	}
	e.addVoidedByBlock(ctx, b, b)
}

// removeFirstBlockMarkers clears first_block on every transaction
// reachable backward from b (towards its parents) via verification edges
// that still points to b, pruning the walk whenever it meets a block or a
// transaction whose first_block has already diverged.
func (e *Engine) removeFirstBlockMarkers(ctx *Context, b dag.Hash) {
	w := BFSWalk(e.storage, b, WalkOptions{Verification: true, Forward: false, SkipRoot: true})
	for {
		h, ok := w.Next()
		if !ok {
			break
		}
		r := e.mustRecord(h)
		if r.IsBlock() {
			w.SkipNeighbors()
			continue
		}
		m := e.mustMeta(h)
		if m.FirstBlock != b {
			w.SkipNeighbors()
			continue
		}
		m.FirstBlock = dag.Hash{}
		ctx.MarkAffected(h, m)
	}
	if err := w.Err(); err != nil {
		fatalf("removeFirstBlockMarkers(%s): %v", b, err)
	}
}

// addVoidedByBlock idempotently adds h to voided_by(b) and cascades
// into every spender of b's outputs via TransactionConsensus.
func (e *Engine) addVoidedByBlock(ctx *Context, b dag.Hash, h dag.Hash) bool {
	meta := e.mustMeta(b)
	if meta.VoidedBy.Has(h) {
		return false
	}
	meta.VoidedBy.Add(h)
	ctx.MarkAffected(b, meta)
	for idx := range meta.SpentOutputs {
		for _, spender := range meta.Spenders(idx) {
			e.addVoidedByTx(ctx, spender, h)
		}
	}
	return true
}

// removeVoidedByBlock is the symmetric removal, restoring b to the
// height/tip indexes once its voided_by becomes empty.
func (e *Engine) removeVoidedByBlock(ctx *Context, b dag.Hash, h dag.Hash) bool {
	meta := e.mustMeta(b)
	if !meta.VoidedBy.Has(h) {
		return false
	}
	meta.VoidedBy.Remove(h)
	becameExecuted := meta.VoidedBy.Len() == 0
	ctx.MarkAffected(b, meta)
	if becameExecuted {
		if err := e.storage.AddToIndexes(b); err != nil {
			fatalf("re-indexing %s after it became executed: %v", b, err)
		}
	}
	for idx := range meta.SpentOutputs {
		for _, spender := range meta.Spenders(idx) {
			e.removeVoidedByTx(ctx, spender, h)
		}
	}
	return true
}
