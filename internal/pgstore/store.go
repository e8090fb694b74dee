// Package pgstore is the durable consensus.Storage backend named in
// SPEC_FULL.md's domain stack: records are immutable and kept resident in
// memory (an in-memory consensus.MemStorage does all the live bookkeeping,
// same semantics and invariants), while new records and every metadata
// mutation are also written through to PostgreSQL. The package only
// writes those rows: it has no function that reads them back, so a
// restarted Store starts from an empty in-memory layer.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/dag-consensus/internal/consensus"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

// Store embeds *consensus.MemStorage for all live reads and in-process
// bookkeeping, and layers Postgres persistence on top of the mutations
// that matter for durability: new records, metadata writes, and removed
// (reorg-invalidated) records.
type Store struct {
	*consensus.MemStorage
	pool *pgxpool.Pool
}

// Connect opens a pooled connection and verifies it with a ping, mirroring
// the teacher's PostgresStore.Connect.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{MemStorage: consensus.NewMemStorage(), pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql, exactly as the teacher's
// PostgresStore.InitSchema does.
func (s *Store) InitSchema(ctx context.Context) error {
	schemaBytes, err := os.ReadFile("internal/pgstore/schema.sql")
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("execute schema migrations: %w", err)
	}
	return nil
}

// AddRecord registers the record in the in-memory layer (source of truth
// for the duration of every Driver.Update call) and persists its
// immutable body to the dag_records table.
func (s *Store) AddRecord(r *dag.Record) error {
	if err := s.MemStorage.AddRecord(r); err != nil {
		return err
	}
	return s.persistRecord(context.Background(), r)
}

// SaveMetadata writes through to the in-memory layer first (the copy the
// consensus core keeps reading and mutating in place within the same
// Driver.Update call) and then upserts the durable row.
func (s *Store) SaveMetadata(h dag.Hash, md *dag.Metadata, onlyMetadata bool) error {
	if err := s.MemStorage.SaveMetadata(h, md, onlyMetadata); err != nil {
		return err
	}
	return s.persistMetadata(context.Background(), md)
}

// RemoveRecords deletes from the in-memory layer and the durable tables
// together, since spec.md §3 names record removal as the one case a
// record is ever deleted outright (mempool transactions invalidated by a
// tip regression).
func (s *Store) RemoveRecords(hs []dag.Hash) error {
	if err := s.MemStorage.RemoveRecords(hs); err != nil {
		return err
	}
	ctx := context.Background()
	for _, h := range hs {
		if _, err := s.pool.Exec(ctx, `DELETE FROM dag_metadata WHERE hash = $1`, h.String()); err != nil {
			return fmt.Errorf("delete metadata row for %s: %w", h, err)
		}
		if _, err := s.pool.Exec(ctx, `DELETE FROM dag_records WHERE hash = $1`, h.String()); err != nil {
			return fmt.Errorf("delete record row for %s: %w", h, err)
		}
	}
	return nil
}

func (s *Store) persistRecord(ctx context.Context, r *dag.Record) error {
	parents := hashesToStrings(r.Parents)
	inputs, err := json.Marshal(r.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs for %s: %w", r.Hash, err)
	}
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs for %s: %w", r.Hash, err)
	}

	sql := `
		INSERT INTO dag_records (hash, kind, parents, weight, timestamp, is_genesis, block_parent, inputs, outputs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hash) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, sql, r.Hash.String(), int(r.Kind), parents, r.Weight, r.Timestamp,
		r.IsGenesis, r.BlockParent.String(), inputs, outputs)
	if err != nil {
		return fmt.Errorf("insert dag_records row for %s: %w", r.Hash, err)
	}
	return nil
}

func (s *Store) persistMetadata(ctx context.Context, md *dag.Metadata) error {
	voidedBy := hashesToStrings(md.VoidedBy.Slice())
	conflictWith := hashesToStrings(md.ConflictWith)
	twins := hashesToStrings(md.Twins.Slice())

	sql := `
		INSERT INTO dag_metadata
			(hash, voided_by, conflict_with, twins, first_block, score, score_set,
			 accumulated_weight, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hash) DO UPDATE SET
			voided_by = EXCLUDED.voided_by,
			conflict_with = EXCLUDED.conflict_with,
			twins = EXCLUDED.twins,
			first_block = EXCLUDED.first_block,
			score = EXCLUDED.score,
			score_set = EXCLUDED.score_set,
			accumulated_weight = EXCLUDED.accumulated_weight,
			height = EXCLUDED.height;
	`
	_, err := s.pool.Exec(ctx, sql, md.Hash.String(), voidedBy, conflictWith, twins,
		md.FirstBlock.String(), md.Score, md.ScoreSet(), md.AccumulatedWeight, md.Height)
	if err != nil {
		return fmt.Errorf("upsert dag_metadata row for %s: %w", md.Hash, err)
	}
	return nil
}

func hashesToStrings(hs []dag.Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.String()
	}
	return out
}
