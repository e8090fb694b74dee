package consensus

import (
	"crypto/sha256"
	"time"

	"github.com/rawblock/dag-consensus/internal/quarantine"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

// testHash derives a deterministic, collision-free hash from a short
// label so scenario tests read as "block b2'" rather than raw hex.
func testHash(label string) dag.Hash {
	sum := sha256.Sum256([]byte(label))
	return dag.Hash(sum)
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// tick returns a strictly increasing timestamp n minutes after epoch, so
// every record in a scenario gets a distinct, orderable arrival time.
func tick(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Minute)
}

// recordedPublish is one call captured by a fakePublisher.
type recordedPublish struct {
	topic   string
	payload map[string]any
}

type fakePublisher struct {
	published []recordedPublish
}

func (p *fakePublisher) Publish(topic string, payload map[string]any) {
	p.published = append(p.published, recordedPublish{topic: topic, payload: payload})
}

// harness bundles a fresh in-memory store, engine, driver and publisher
// for one test, with no soft-voided hashes configured unless the test
// seeds the registry itself.
type harness struct {
	storage *MemStorage
	engine  *Engine
	driver  *Driver
	pub     *fakePublisher
	soft    *quarantine.Registry
}

func newHarness(seed ...dag.Hash) *harness {
	storage := NewMemStorage()
	soft := quarantine.New(seed...)
	engine := NewEngine(storage, Config{SoftVoidFilter: NewSoftVoidFilter(soft)})
	pub := &fakePublisher{}
	driver := NewDriver(storage, engine, pub)
	return &harness{storage: storage, engine: engine, driver: driver, pub: pub, soft: soft}
}

// genesisBlock builds and submits the genesis block, returning it.
func (h *harness) genesisBlock(label string, weight float64) *dag.Record {
	r := &dag.Record{
		Kind:      dag.KindBlock,
		Hash:      testHash(label),
		Weight:    weight,
		Timestamp: tick(0),
		IsGenesis: true,
	}
	h.mustAdd(r)
	return r
}

// block builds and submits a block extending parent via BlockParent,
// with no transaction parents.
func (h *harness) block(label string, parent *dag.Record, weight float64, ts time.Time) *dag.Record {
	r := &dag.Record{
		Kind:        dag.KindBlock,
		Hash:        testHash(label),
		Parents:     []dag.Hash{parent.Hash},
		BlockParent: parent.Hash,
		Weight:      weight,
		Timestamp:   ts,
	}
	h.mustAdd(r)
	return r
}

// tx builds and submits a transaction with the given verification
// parents and spent inputs.
func (h *harness) tx(label string, weight float64, ts time.Time, parents []dag.Hash, inputs []dag.Input) *dag.Record {
	r := &dag.Record{
		Kind:      dag.KindTransaction,
		Hash:      testHash(label),
		Parents:   parents,
		Weight:    weight,
		Timestamp: ts,
		Inputs:    inputs,
	}
	h.mustAdd(r)
	return r
}

// genesisTx builds and submits a parentless, input-less transaction,
// used to seed a spendable output.
func (h *harness) genesisTx(label string, weight float64) *dag.Record {
	r := &dag.Record{
		Kind:      dag.KindTransaction,
		Hash:      testHash(label),
		Weight:    weight,
		Timestamp: tick(0),
		IsGenesis: true,
		Outputs:   []dag.Output{{Value: 100}},
	}
	h.mustAdd(r)
	return r
}

func (h *harness) mustAdd(r *dag.Record) {
	if err := h.storage.AddRecord(r); err != nil {
		panic(err)
	}
	if err := h.driver.Update(r); err != nil {
		panic(err)
	}
}

func (h *harness) meta(r *dag.Record) *dag.Metadata {
	m, err := h.storage.GetMetadata(r.Hash)
	if err != nil {
		panic(err)
	}
	return m
}
