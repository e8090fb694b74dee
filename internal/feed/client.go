// Package feed is the ambient demo harness named in SPEC_FULL.md: an
// out-of-core consumer that turns an upstream Bitcoin-shaped node's blocks
// and mempool entries into dag.Records and drives them through
// consensus.Driver.Update, the way any real network/sync layer would.
// spec.md §1 explicitly places network, RPC and sync protocol out of the
// consensus core's scope — this package is one illustrative producer, not
// part of the core itself.
package feed

import (
	"log"

	"github.com/btcsuite/btcd/rpcclient"
)

// Config names the upstream RPC endpoint, mirroring bitcoin.Config.
type Config struct {
	Host string
	User string
	Pass string
}

// Client is a thin RPC wrapper scoped to what a replay feed needs: block
// and mempool reads. Unlike the teacher's bitcoin.Client it carries no
// wallet/watch-only machinery, since a consensus feed never originates
// transactions of its own.
type Client struct {
	RPC    *rpcclient.Client
	Config Config
}

// NewClient dials the upstream node and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	log.Printf("[feed] connecting to upstream node at %s...", cfg.Host)
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	height, err := client.GetBlockCount()
	if err != nil {
		client.Shutdown()
		return nil, err
	}
	log.Printf("[feed] connected, upstream tip height=%d", height)

	return &Client{RPC: client, Config: cfg}, nil
}

func (c *Client) Shutdown() {
	c.RPC.Shutdown()
}
