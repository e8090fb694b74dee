package shadow

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/rawblock/dag-consensus/internal/consensus"
	"github.com/rawblock/dag-consensus/internal/quarantine"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

func shadowTestHash(label string) dag.Hash {
	return dag.Hash(sha256.Sum256([]byte(label)))
}

func newSide(seed ...dag.Hash) (*consensus.MemStorage, *consensus.Driver) {
	storage := consensus.NewMemStorage()
	soft := quarantine.New(seed...)
	engine := consensus.NewEngine(storage, consensus.Config{SoftVoidFilter: consensus.NewSoftVoidFilter(soft)})
	driver := consensus.NewDriver(storage, engine, noopPublisher{})
	return storage, driver
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, map[string]any) {}

func submit(t *testing.T, prodStorage, candStorage *consensus.MemStorage, c *Comparator, r *dag.Record) {
	t.Helper()
	if err := prodStorage.AddRecord(r); err != nil {
		t.Fatalf("prodStorage.AddRecord(%s): %v", r.Hash, err)
	}
	if err := candStorage.AddRecord(r); err != nil {
		t.Fatalf("candStorage.AddRecord(%s): %v", r.Hash, err)
	}
	if err := c.Compare(r); err != nil {
		t.Fatalf("Compare(%s): %v", r.Hash, err)
	}
}

func TestComparatorAgreesWhenConfigsAreIdentical(t *testing.T) {
	prodStorage, prodDriver := newSide()
	candStorage, candDriver := newSide()
	c := NewComparator(prodStorage, candStorage, prodDriver, candDriver)

	genesis := &dag.Record{Kind: dag.KindBlock, Hash: shadowTestHash("genesis"), Weight: 10, Timestamp: time.Unix(0, 0), IsGenesis: true}
	submit(t, prodStorage, candStorage, c, genesis)

	b1 := &dag.Record{Kind: dag.KindBlock, Hash: shadowTestHash("b1"), Parents: []dag.Hash{genesis.Hash}, BlockParent: genesis.Hash, Weight: 10, Timestamp: time.Unix(60, 0)}
	submit(t, prodStorage, candStorage, c, b1)

	if divs := c.Divergences(); len(divs) != 0 {
		t.Fatalf("Divergences() = %v, want none for identical configs", divs)
	}
	agreement := c.Agreement()
	if agreement.ARI < 0.99 {
		t.Errorf("Agreement().ARI = %v, want ~1.0 for identical configs", agreement.ARI)
	}
}

func TestComparatorReportsDivergenceWhenQuarantineListsDiffer(t *testing.T) {
	spentTx := &dag.Record{Kind: dag.KindTransaction, Hash: shadowTestHash("spent"), Weight: 5, Timestamp: time.Unix(0, 0), IsGenesis: true, Outputs: []dag.Output{{Value: 10}}}

	prodStorage, prodDriver := newSide()
	candStorage, candDriver := newSide(spentTx.Hash) // candidate quarantines spentTx, production does not
	c := NewComparator(prodStorage, candStorage, prodDriver, candDriver)

	submit(t, prodStorage, candStorage, c, spentTx)

	if len(c.Divergences()) != 1 {
		t.Fatalf("Divergences() after quarantined genesis tx = %d, want 1", len(c.Divergences()))
	}
	d := c.Divergences()[0]
	if d.ProductionVoided == d.CandidateVoided {
		t.Errorf("Divergence %+v should disagree on voidance", d)
	}
}
