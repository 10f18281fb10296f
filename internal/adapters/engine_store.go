// Package adapters wires module-owned repositories into the ports other
// modules consume, so modules never import each other's internals directly.
package adapters

import (
	"context"

	leadsrepo "realty_crm_backend/internal/leads/repository"
	"realty_crm_backend/internal/sequences/engine"
	seqrepo "realty_crm_backend/internal/sequences/repository"
	"realty_crm_backend/platform/db"

	"github.com/jackc/pgx/v5"
)

// EngineStore backs the sequence engine with the Postgres lead and sequence
// repositories. Transaction-bound copies share one pgx.Tx.
type EngineStore struct {
	conn      db.DBTX
	leads     *leadsrepo.Repository
	sequences *seqrepo.Repository
}

// NewEngineStore creates a store over conn.
func NewEngineStore(conn db.DBTX, leads *leadsrepo.Repository, sequences *seqrepo.Repository) *EngineStore {
	return &EngineStore{conn: conn, leads: leads, sequences: sequences}
}

func (s *EngineStore) Leads() engine.LeadStore {
	return s.leads
}

func (s *EngineStore) Sequences() engine.SequenceStore {
	return s.sequences
}

// WithinTx begins a transaction on the store's connection. On a store that
// is already transaction-bound this is a savepoint.
func (s *EngineStore) WithinTx(ctx context.Context, fn func(engine.Store) error) error {
	return db.WithTx(ctx, s.conn, func(tx pgx.Tx) error {
		return fn(&EngineStore{
			conn:      tx,
			leads:     s.leads.WithTx(tx),
			sequences: s.sequences.WithTx(tx),
		})
	})
}

// Compile-time checks.
var (
	_ engine.Store         = (*EngineStore)(nil)
	_ engine.LeadStore     = (*leadsrepo.Repository)(nil)
	_ engine.SequenceStore = (*seqrepo.Repository)(nil)
)
