package consensus

import (
	"testing"

	"github.com/rawblock/dag-consensus/pkg/dag"
)

// Scenario 1 (spec.md §8.1): genesis only.
func TestScenarioGenesisOnly(t *testing.T) {
	h := newHarness()
	g := h.genesisBlock("genesis", 20)

	gm := h.meta(g)
	if gm.IsVoided() {
		t.Fatalf("genesis voided_by = %v, want empty", gm.VoidedBy.Slice())
	}
	if gm.Score != 20 {
		t.Errorf("genesis score = %v, want 20 (score := weight)", gm.Score)
	}

	height, tip, err := h.storage.HeightIndex().GetHeightTip()
	if err != nil {
		t.Fatalf("GetHeightTip: %v", err)
	}
	if height != 0 || tip != g.Hash {
		t.Errorf("height-tip = (%d, %s), want (0, genesis)", height, tip)
	}
}

// Scenario 2 (spec.md §8.2): linear extension.
func TestScenarioLinearExtension(t *testing.T) {
	h := newHarness()
	g := h.genesisBlock("genesis", 20)
	b1 := h.block("b1", g, 20, tick(1))
	b2 := h.block("b2", b1, 20, tick(2))
	b3 := h.block("b3", b2, 20, tick(3))

	for i, b := range []*dag.Record{b1, b2, b3} {
		m := h.meta(b)
		if m.IsVoided() {
			t.Errorf("block %d voided_by = %v, want empty", i+1, m.VoidedBy.Slice())
		}
		if m.Height != uint64(i+1) {
			t.Errorf("block %d height = %d, want %d", i+1, m.Height, i+1)
		}
	}

	height, tip, err := h.storage.HeightIndex().GetHeightTip()
	if err != nil {
		t.Fatalf("GetHeightTip: %v", err)
	}
	if height != 3 || tip != b3.Hash {
		t.Errorf("height-tip = (%d, %s), want (3, b3)", height, tip)
	}

	tips, err := h.storage.BestBlockTips(false)
	if err != nil {
		t.Fatalf("BestBlockTips: %v", err)
	}
	if len(tips) != 1 || tips[0] != b3.Hash {
		t.Errorf("best tips = %v, want [b3]", tips)
	}

	want := SumWeights(SumWeights(SumWeights(20, 20), 20), 20)
	if got := h.meta(b3).Score; got != want {
		t.Errorf("b3 score = %v, want %v", got, want)
	}
}

// Scenario 3 (spec.md §8.3): fork at equal score.
func TestScenarioForkAtEqualScore(t *testing.T) {
	h := newHarness()
	g := h.genesisBlock("genesis", 20)
	b1 := h.block("b1", g, 20, tick(1))
	b2 := h.block("b2", b1, 20, tick(2))
	b2Prime := h.block("b2-prime", b1, 20, tick(3))

	m2, m2p := h.meta(b2), h.meta(b2Prime)
	if !m2.VoidedBy.Has(b2.Hash) || m2.VoidedBy.Len() != 1 {
		t.Errorf("b2 voided_by = %v, want self-void only", m2.VoidedBy.Slice())
	}
	if !m2p.VoidedBy.Has(b2Prime.Hash) || m2p.VoidedBy.Len() != 1 {
		t.Errorf("b2' voided_by = %v, want self-void only", m2p.VoidedBy.Slice())
	}

	tips, err := h.storage.BestBlockTips(false)
	if err != nil {
		t.Fatalf("BestBlockTips: %v", err)
	}
	got := dag.NewHashSet(tips...)

	if len(tips) != 2 || !got.Has(b2.Hash) || !got.Has(b2Prime.Hash) {
		t.Errorf("best tips = %v, want {b2, b2'}", tips)
	}

	if h.meta(b1).IsVoided() {
		t.Errorf("b1 voided_by = %v, want empty (no block executed beyond b1, but b1 itself stays executed)", h.meta(b1).VoidedBy.Slice())
	}
}

// Scenario 4 (spec.md §8.4): fork resolution.
func TestScenarioForkResolution(t *testing.T) {
	h := newHarness()
	g := h.genesisBlock("genesis", 20)
	b1 := h.block("b1", g, 20, tick(1))
	b2 := h.block("b2", b1, 20, tick(2))
	b2Prime := h.block("b2-prime", b1, 20, tick(3))
	b3Prime := h.block("b3-prime", b2Prime, 20, tick(4))

	if !h.meta(b3Prime).IsExecuted() {
		t.Errorf("b3' voided_by = %v, want empty", h.meta(b3Prime).VoidedBy.Slice())
	}
	if !h.meta(b2Prime).IsExecuted() {
		t.Errorf("b2' voided_by = %v, want empty (self-void removed)", h.meta(b2Prime).VoidedBy.Slice())
	}
	m2 := h.meta(b2)
	if !m2.VoidedBy.Has(b2.Hash) || m2.VoidedBy.Len() != 1 {
		t.Errorf("b2 voided_by = %v, want self-void only", m2.VoidedBy.Slice())
	}

	tips, err := h.storage.BestBlockTips(false)
	if err != nil {
		t.Fatalf("BestBlockTips: %v", err)
	}
	if len(tips) != 1 || tips[0] != b3Prime.Hash {
		t.Errorf("best tips = %v, want [b3']", tips)
	}

	height, tip, err := h.storage.HeightIndex().GetHeightTip()
	if err != nil {
		t.Fatalf("GetHeightTip: %v", err)
	}
	if height != 3 || tip != b3Prime.Hash {
		t.Errorf("height-tip = (%d, %s), want (3, b3')", height, tip)
	}
}

// Scenario 5 (spec.md §8.5): double spend.
func TestScenarioDoubleSpend(t *testing.T) {
	h := newHarness()
	s := h.genesisTx("s", 10)

	t1 := h.tx("t1", 20, tick(1), []dag.Hash{s.Hash}, []dag.Input{{PrevHash: s.Hash, Index: 0}})
	if h.meta(t1).IsVoided() {
		t.Fatalf("t1 voided_by = %v, want empty after its own update", h.meta(t1).VoidedBy.Slice())
	}

	t2 := h.tx("t2", 20, tick(2), []dag.Hash{s.Hash}, []dag.Input{{PrevHash: s.Hash, Index: 0}})

	m1, m2 := h.meta(t1), h.meta(t2)
	if !m1.HasConflict(t2.Hash) || !m2.HasConflict(t1.Hash) {
		t.Fatalf("expected t1 and t2 to conflict with each other: t1.conflict_with=%v t2.conflict_with=%v", m1.ConflictWith, m2.ConflictWith)
	}
	// Equal weight, no descendants yet on either side: accumulated
	// weight ties, so both end up self-voided with no winner.
	if !m1.VoidedBy.Has(t1.Hash) || m1.VoidedBy.Len() != 1 {
		t.Errorf("t1 voided_by = %v, want self-void only (tie)", m1.VoidedBy.Slice())
	}
	if !m2.VoidedBy.Has(t2.Hash) || m2.VoidedBy.Len() != 1 {
		t.Errorf("t2 voided_by = %v, want self-void only (tie)", m2.VoidedBy.Slice())
	}

	// t3 verifies t1 with higher weight: t1 should win outright.
	h.tx("t3", 50, tick(3), []dag.Hash{t1.Hash}, nil)

	if m1 := h.meta(t1); m1.IsVoided() {
		t.Errorf("t1 voided_by = %v, want empty after t3 tips the scale", m1.VoidedBy.Slice())
	}
	if m2 := h.meta(t2); !m2.VoidedBy.Has(t2.Hash) || m2.VoidedBy.Len() != 1 {
		t.Errorf("t2 voided_by = %v, want self-void only (loser)", m2.VoidedBy.Slice())
	}
}

// Regression (review fix): a conflict voided by something other than
// itself — e.g. quarantined via soft-void — must never count as a live
// competitor in checkConflicts, no matter how much weight piles onto it.
func TestScenarioConflictIgnoresExternallyVoidedCandidate(t *testing.T) {
	dead := testHash("t_dead")
	h := newHarness(dead)

	s := h.genesisTx("s", 10)

	tDead := &dag.Record{
		Kind:      dag.KindTransaction,
		Hash:      dead,
		Parents:   []dag.Hash{s.Hash},
		Weight:    20,
		Timestamp: tick(1),
		Inputs:    []dag.Input{{PrevHash: s.Hash, Index: 0}},
		Outputs:   []dag.Output{{Value: 50}},
	}
	h.mustAdd(tDead)

	mDead := h.meta(tDead)
	if !mDead.VoidedBy.Has(dag.SoftVoidedID) || !mDead.VoidedBy.Has(dead) || mDead.VoidedBy.Len() != 2 {
		t.Fatalf("t_dead voided_by = %v, want {SENTINEL, self}", mDead.VoidedBy.Slice())
	}

	// A heavy spender piles weight onto t_dead's accumulated weight via
	// the (unfiltered) funds edge. Under the old, inverted candidate set
	// this alone would block t3's promotion forever.
	deadChild := &dag.Record{
		Kind:      dag.KindTransaction,
		Hash:      testHash("t_dead_child"),
		Parents:   []dag.Hash{tDead.Hash},
		Weight:    500,
		Timestamp: tick(2),
		Inputs:    []dag.Input{{PrevHash: tDead.Hash, Index: 0}},
	}
	h.mustAdd(deadChild)

	t3 := h.tx("t3", 6, tick(3), []dag.Hash{s.Hash}, []dag.Input{{PrevHash: s.Hash, Index: 0}})

	m3 := h.meta(t3)
	if m3.IsVoided() {
		t.Errorf("t3 voided_by = %v, want empty: its only live competitor is t_dead, which is externally (soft-)voided and must be excluded from the candidate set", m3.VoidedBy.Slice())
	}
}

// Scenario 6 (spec.md §8.6): soft void propagates via funds only.
func TestScenarioSoftVoidFundsOnly(t *testing.T) {
	s := testHash("soft-s")
	h := newHarness(s)

	sTx := &dag.Record{
		Kind:      dag.KindTransaction,
		Hash:      s,
		Weight:    10,
		Timestamp: tick(0),
		IsGenesis: true,
		Outputs:   []dag.Output{{Value: 100}},
	}
	h.mustAdd(sTx)

	sMeta := h.meta(sTx)
	if !sMeta.VoidedBy.Has(dag.SoftVoidedID) || !sMeta.VoidedBy.Has(s) {
		t.Fatalf("soft-voided s voided_by = %v, want {SENTINEL, s}", sMeta.VoidedBy.Slice())
	}

	tv := h.tx("t_v", 10, tick(1), []dag.Hash{s}, nil)
	if m := h.meta(tv); m.VoidedBy.Has(dag.SoftVoidedID) {
		t.Errorf("t_v (verification-only child) voided_by = %v, must not contain the sentinel", m.VoidedBy.Slice())
	}

	tf := h.tx("t_f", 10, tick(2), nil, []dag.Input{{PrevHash: s, Index: 0}})
	mf := h.meta(tf)
	if !mf.VoidedBy.Has(dag.SoftVoidedID) || !mf.VoidedBy.Has(s) {
		t.Errorf("t_f (funds child) voided_by = %v, want superset of {SENTINEL, s}", mf.VoidedBy.Slice())
	}
}

// P6 (spec.md §8): re-running update on an already-processed genesis
// block or a plain transaction leaves its metadata unchanged.
func TestIdempotentUpdate(t *testing.T) {
	h := newHarness()
	g := h.genesisBlock("genesis", 20)
	before := h.meta(g)
	beforeScore, beforeHeight, beforeVoided := before.Score, before.Height, before.VoidedBy.Len()

	h.engine.UpdateBlock(NewContext(h.storage), g)

	after := h.meta(g)
	if after.Score != beforeScore || after.Height != beforeHeight || after.VoidedBy.Len() != beforeVoided {
		t.Errorf("genesis metadata changed on re-update: score %v->%v height %v->%v voided %v->%v",
			beforeScore, after.Score, beforeHeight, after.Height, beforeVoided, after.VoidedBy.Len())
	}

	tx := h.tx("solo-tx", 10, tick(1), nil, nil)
	beforeTx := h.meta(tx).Clone()

	h.engine.UpdateTransaction(NewContext(h.storage), tx)

	afterTx := h.meta(tx)
	if afterTx.VoidedBy.Len() != beforeTx.VoidedBy.Len() || len(afterTx.ConflictWith) != len(beforeTx.ConflictWith) {
		t.Errorf("transaction metadata changed on re-update: voided %v->%v conflicts %v->%v",
			beforeTx.VoidedBy.Slice(), afterTx.VoidedBy.Slice(), beforeTx.ConflictWith, afterTx.ConflictWith)
	}
}
