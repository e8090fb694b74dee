package pgstore

import (
	"testing"

	"github.com/rawblock/dag-consensus/pkg/dag"
)

func TestHashesToStringsPreservesOrder(t *testing.T) {
	a := dag.HashFromHexMust("1111111111111111111111111111111111111111111111111111111111111111")
	b := dag.HashFromHexMust("2222222222222222222222222222222222222222222222222222222222222222")

	got := hashesToStrings([]dag.Hash{a, b})
	if len(got) != 2 || got[0] != a.String() || got[1] != b.String() {
		t.Fatalf("hashesToStrings(%v, %v) = %v, want [%s %s]", a, b, got, a.String(), b.String())
	}
}

func TestHashesToStringsEmpty(t *testing.T) {
	got := hashesToStrings(nil)
	if len(got) != 0 {
		t.Fatalf("hashesToStrings(nil) = %v, want empty", got)
	}
}
