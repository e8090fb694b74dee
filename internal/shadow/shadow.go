// Package shadow runs a candidate consensus configuration (a different
// quarantine list, a different weight tolerance) alongside production
// over the same record stream without ever affecting the production
// decision, generalizing the teacher's production-vs-experimental
// heuristic diffing (shadow_runner.go, evaluator.go) from anon-set
// comparison to best-tip/voided_by agreement.
package shadow

import (
	"log"

	"github.com/google/uuid"

	"github.com/rawblock/dag-consensus/internal/consensus"
	"github.com/rawblock/dag-consensus/internal/metrics"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

// Run identifies one comparison window for log correlation, mirroring
// the teacher's shadowSnapshotID.
type Run struct {
	ID uuid.UUID
}

func NewRun() Run {
	return Run{ID: uuid.New()}
}

// Divergence reports one record update where production and candidate
// disagreed, either on whether the updated record itself is voided or on
// the best block tip (the first entry of each side's best-tip list).
type Divergence struct {
	Record           dag.Hash
	ProductionVoided bool
	CandidateVoided  bool
	ProductionTip    dag.Hash
	CandidateTip     dag.Hash
}

// Comparator drives the same record through two independent
// consensus.Driver instances (production and candidate) and reports
// where their decisions diverge. Each side owns its own Storage, so
// neither run observes the other's state.
type Comparator struct {
	run Run

	productionStorage consensus.Storage
	candidateStorage  consensus.Storage
	production        *consensus.Driver
	candidate         *consensus.Driver

	productionTips []dag.Hash
	candidateTips  []dag.Hash
	divergences    []Divergence
}

// NewComparator builds a Comparator. productionStorage/candidateStorage
// must each already contain the record's ancestors (the same
// registration discipline every Driver.Update caller follows) before
// Compare is called on it.
func NewComparator(
	productionStorage, candidateStorage consensus.Storage,
	production, candidate *consensus.Driver,
) *Comparator {
	return &Comparator{
		run:               NewRun(),
		productionStorage: productionStorage,
		candidateStorage:  candidateStorage,
		production:        production,
		candidate:         candidate,
	}
}

// Compare feeds r through both drivers and records any divergence in
// voidance or best-tip decision. The record and its ancestors must
// already be registered (AddRecord-equivalent) in both storages.
func (c *Comparator) Compare(r *dag.Record) error {
	if err := c.production.Update(r); err != nil {
		return err
	}
	if err := c.candidate.Update(r); err != nil {
		return err
	}

	prodMeta, err := c.productionStorage.GetMetadata(r.Hash)
	if err != nil {
		return err
	}
	candMeta, err := c.candidateStorage.GetMetadata(r.Hash)
	if err != nil {
		return err
	}

	prodTips, err := c.productionStorage.BestBlockTips(false)
	if err != nil {
		return err
	}
	candTips, err := c.candidateStorage.BestBlockTips(false)
	if err != nil {
		return err
	}
	prodTip := firstOrZero(prodTips)
	candTip := firstOrZero(candTips)
	c.productionTips = append(c.productionTips, prodTip)
	c.candidateTips = append(c.candidateTips, candTip)

	if prodMeta.IsVoided() != candMeta.IsVoided() || prodTip != candTip {
		d := Divergence{
			Record:           r.Hash,
			ProductionVoided: prodMeta.IsVoided(),
			CandidateVoided:  candMeta.IsVoided(),
			ProductionTip:    prodTip,
			CandidateTip:     candTip,
		}
		c.divergences = append(c.divergences, d)
		log.Printf("[shadow run=%s] divergence on %s: prod_voided=%v cand_voided=%v prod_tip=%s cand_tip=%s",
			c.run.ID, r.Hash, d.ProductionVoided, d.CandidateVoided, d.ProductionTip, d.CandidateTip)
	}
	return nil
}

// Divergences returns every divergence recorded so far, in update order.
func (c *Comparator) Divergences() []Divergence {
	return c.divergences
}

// Agreement scores how closely the two runs' best-tip histories have
// tracked each other so far.
func (c *Comparator) Agreement() metrics.TipSetAgreement {
	return metrics.CompareTipHistories(c.productionTips, c.candidateTips)
}

func firstOrZero(hs []dag.Hash) dag.Hash {
	if len(hs) == 0 {
		return dag.Hash{}
	}
	return hs[0]
}
