package feed

import (
	"context"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/dag-consensus/internal/consensus"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

// RecordStore is the registration half of consensus.Storage a feed needs
// directly: every record must be known to Storage (record body + fresh
// metadata) before Driver.Update is called on it, since the consensus
// core assumes GetRecord/GetMetadata already resolve for the record and
// every one of its ancestors.
type RecordStore interface {
	AddRecord(r *dag.Record) error
}

// Poller drives a Client's upstream block/mempool state into a
// consensus.Driver: it catches up historical blocks first, then watches
// for new blocks and unseen mempool transactions on a ticker. This
// collapses the teacher's BlockScanner (historical catch-up) and
// mempool.Poller (live watch) into one producer, since both ultimately
// do the same thing here: turn upstream data into Driver.Update calls.
type Poller struct {
	client *Client
	store  RecordStore
	driver *consensus.Driver

	lastHeight  atomic.Int64
	seenMempool map[dag.Hash]bool
}

func NewPoller(client *Client, store RecordStore, driver *consensus.Driver) *Poller {
	return &Poller{client: client, store: store, driver: driver, seenMempool: make(map[dag.Hash]bool)}
}

// Run catches up every block from startHeight to the current upstream
// tip, then polls every tickEvery for new blocks and mempool arrivals
// until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, startHeight int64, tickEvery time.Duration) {
	if p.client == nil {
		log.Println("[feed] no upstream client configured; poller will not start")
		return
	}

	p.lastHeight.Store(startHeight - 1)
	p.catchUp(ctx)

	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[feed] stopping poller")
			return
		case <-cleanup.C:
			p.seenMempool = make(map[dag.Hash]bool)
		case <-ticker.C:
			p.catchUp(ctx)
			p.pollMempool()
		}
	}
}

func (p *Poller) catchUp(ctx context.Context) {
	tip, err := p.client.RPC.GetBlockCount()
	if err != nil {
		log.Printf("[feed] error fetching upstream tip: %v", err)
		return
	}

	for h := p.lastHeight.Load() + 1; h <= tip; h++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := p.fetchBlock(h); err != nil {
			log.Printf("[feed] error fetching block %d: %v", h, err)
			return
		}
		p.lastHeight.Store(h)
	}
}

func (p *Poller) fetchBlock(height int64) error {
	hash, err := p.client.RPC.GetBlockHash(height)
	if err != nil {
		return err
	}
	block, err := p.client.RPC.GetBlockVerbose(hash)
	if err != nil {
		return err
	}

	var blockParent dag.Hash
	if block.PreviousHash != "" {
		if prevHash, err := chainhash.NewHashFromStr(block.PreviousHash); err == nil {
			blockParent = dag.Hash(*prevHash)
		}
	}

	record := &dag.Record{
		Kind:        dag.KindBlock,
		Hash:        dag.Hash(*hash),
		Weight:      weightFromDifficulty(block.Difficulty),
		Timestamp:   time.Unix(block.Time, 0),
		IsGenesis:   blockParent.IsZero(),
		BlockParent: blockParent,
	}
	if !blockParent.IsZero() {
		record.Parents = []dag.Hash{blockParent}
	}

	if err := p.store.AddRecord(record); err != nil {
		return err
	}
	if err := p.driver.Update(record); err != nil {
		return err
	}

	for i, txidStr := range block.Tx {
		if i == 0 {
			continue // coinbase: minted value, spends no prior output
		}
		if err := p.fetchAndSubmitTx(txidStr); err != nil {
			log.Printf("[feed] error submitting confirmed tx %s: %v", txidStr, err)
		}
	}
	return nil
}

func (p *Poller) pollMempool() {
	hashes, err := p.client.RPC.GetRawMempool()
	if err != nil {
		log.Printf("[feed] error fetching mempool: %v", err)
		return
	}

	processed := 0
	for _, h := range hashes {
		hash := dag.Hash(*h)
		if p.seenMempool[hash] {
			continue
		}
		p.seenMempool[hash] = true

		if err := p.fetchAndSubmitTx(h.String()); err != nil {
			log.Printf("[feed] error submitting mempool tx %s: %v", h.String(), err)
			continue
		}
		processed++
		if processed >= 20 {
			break // bound per-tick work, matching the teacher's mempool.Poller throttle
		}
	}
}

// fetchAndSubmitTx maps one upstream transaction into a dag.Record and
// submits it. Bitcoin has no verification DAG of its own, so every
// mapped transaction is parentless (Parents is nil) — only its funds
// edges (Inputs) carry real structure, which is sufficient to exercise
// the funds-DAG half of TransactionConsensus.
func (p *Poller) fetchAndSubmitTx(txidStr string) error {
	hash, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return err
	}
	rawTx, err := p.client.RPC.GetRawTransactionVerbose(hash)
	if err != nil {
		return err
	}

	var inputs []dag.Input
	for _, vin := range rawTx.Vin {
		if vin.Txid == "" {
			continue // coinbase-shaped input: no prior output spent
		}
		prevHash, err := chainhash.NewHashFromStr(vin.Txid)
		if err != nil {
			continue
		}
		inputs = append(inputs, dag.Input{PrevHash: dag.Hash(*prevHash), Index: vin.Vout})
	}

	outputs := make([]dag.Output, len(rawTx.Vout))
	for i, vout := range rawTx.Vout {
		outputs[i] = dag.Output{Value: int64(vout.Value * 100_000_000)}
	}

	ts := time.Unix(rawTx.Blocktime, 0)
	if rawTx.Blocktime == 0 {
		ts = time.Now()
	}

	record := &dag.Record{
		Kind:      dag.KindTransaction,
		Hash:      dag.Hash(*hash),
		Weight:    weightFromSize(rawTx.Vsize),
		Timestamp: ts,
		IsGenesis: len(inputs) == 0,
		Inputs:    inputs,
		Outputs:   outputs,
	}

	if err := p.store.AddRecord(record); err != nil {
		return err
	}
	return p.driver.Update(record)
}

// weightFromDifficulty log-scales a block's PoW difficulty into the same
// weight domain consensus.SumWeights operates in.
func weightFromDifficulty(difficulty float64) float64 {
	if difficulty < 1 {
		difficulty = 1
	}
	return math.Log2(difficulty) + 1
}

// weightFromSize gives every transaction a modest positive weight
// proportional to its size, standing in for the fee-based weight
// function a real Verifier (out of scope per spec.md §1) would supply.
func weightFromSize(vsize int32) float64 {
	if vsize < 1 {
		vsize = 1
	}
	return math.Log2(float64(vsize)) + 1
}
