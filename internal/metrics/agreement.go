package metrics

import "github.com/rawblock/dag-consensus/pkg/dag"

// TipSetAgreement reports how closely two runs' best-chain tip histories
// agree, reusing AdjustedRandIndex and VariationOfInformation in place of
// their original cluster-partition inputs: each run's tip history over a
// window is encoded as an integer label per position (tips sharing a hash
// get the same label), so "same partition" becomes "same tip sequence".
type TipSetAgreement struct {
	ARI float64
	VI  float64
}

// CompareTipHistories labels production and candidate tip histories by
// distinct hash and scores their agreement. The two histories must be the
// same length (one tip recorded per update); a length mismatch is a caller
// bug, not a data condition, so it returns the zero value rather than
// guessing an alignment.
func CompareTipHistories(production, candidate []dag.Hash) TipSetAgreement {
	if len(production) != len(candidate) || len(production) < 2 {
		return TipSetAgreement{}
	}

	labels := make(map[dag.Hash]int)
	nextLabel := 0
	labelOf := func(h dag.Hash) int {
		if l, ok := labels[h]; ok {
			return l
		}
		l := nextLabel
		labels[h] = l
		nextLabel++
		return l
	}

	prodLabels := make([]int, len(production))
	candLabels := make([]int, len(candidate))
	for i, h := range production {
		prodLabels[i] = labelOf(h)
	}
	for i, h := range candidate {
		candLabels[i] = labelOf(h)
	}

	return TipSetAgreement{
		ARI: AdjustedRandIndex(prodLabels, candLabels),
		VI:  VariationOfInformation(prodLabels, candLabels),
	}
}
