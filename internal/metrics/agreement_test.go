package metrics

import (
	"testing"

	"github.com/rawblock/dag-consensus/pkg/dag"
)

func hashN(n byte) dag.Hash {
	var h dag.Hash
	h[31] = n
	return h
}

func TestCompareTipHistoriesIdenticalRunsScorePerfectAgreement(t *testing.T) {
	history := []dag.Hash{hashN(1), hashN(2), hashN(3), hashN(2)}

	got := CompareTipHistories(history, history)

	if got.ARI < 0.99 {
		t.Errorf("CompareTipHistories(identical) ARI = %v, want ~1.0", got.ARI)
	}
	if got.VI > 0.01 {
		t.Errorf("CompareTipHistories(identical) VI = %v, want ~0.0", got.VI)
	}
}

func TestCompareTipHistoriesDivergentRunsScorePoorAgreement(t *testing.T) {
	production := []dag.Hash{hashN(1), hashN(1), hashN(1), hashN(2), hashN(2), hashN(2)}
	candidate := []dag.Hash{hashN(3), hashN(4), hashN(3), hashN(4), hashN(3), hashN(4)}

	got := CompareTipHistories(production, candidate)

	if got.ARI > 0.5 {
		t.Errorf("CompareTipHistories(divergent) ARI = %v, want near 0", got.ARI)
	}
}

func TestCompareTipHistoriesLengthMismatchReturnsZeroValue(t *testing.T) {
	got := CompareTipHistories([]dag.Hash{hashN(1)}, []dag.Hash{hashN(1), hashN(2)})
	if got != (TipSetAgreement{}) {
		t.Errorf("CompareTipHistories(mismatched lengths) = %+v, want zero value", got)
	}
}
