package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// JournalStore persists wallet journal entries.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// InsertEntries batch-inserts journal entries, ignoring ones already
// present, and reports how many were new.
func (s *JournalStore) InsertEntries(ctx context.Context, entries []model.JournalEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		var contextID *int64
		if e.ContextID != 0 {
			id := e.ContextID
			contextID = &id
		}
		batch.Queue(
			`INSERT INTO wallet_journal (entry_id, owner_id, amount, ref_type,
				context_id, date, description)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (entry_id, owner_id) DO NOTHING`,
			e.ID, e.OwnerID, e.Amount.String(), e.RefType,
			contextID, e.Date, e.Description,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	newCount := 0
	for range entries {
		tag, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert journal entry: %w", err)
		}
		newCount += int(tag.RowsAffected())
	}
	return newCount, nil
}

// TaxEntries returns the owner's journal entries recorded against
// contextID.
func (s *JournalStore) TaxEntries(ctx context.Context, ownerID, contextID int64) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_id, owner_id, COALESCE(amount::text, '0'), ref_type,
			COALESCE(context_id, 0), date, description
		 FROM wallet_journal
		 WHERE owner_id = $1 AND context_id = $2`,
		ownerID, contextID,
	)
	if err != nil {
		return nil, fmt.Errorf("select journal entries: %w", err)
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var (
			e         model.JournalEntry
			amountRaw string
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &amountRaw, &e.RefType,
			&e.ContextID, &e.Date, &e.Description); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amountRaw)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ProfitStore composes the ledger and journal stores into the single
// store the profit reporter reads.
type ProfitStore struct {
	*LedgerStore
	*JournalStore
}

// NewProfitStore creates a ProfitStore over both tables.
func NewProfitStore(pool *pgxpool.Pool) *ProfitStore {
	return &ProfitStore{
		LedgerStore:  NewLedgerStore(pool),
		JournalStore: NewJournalStore(pool),
	}
}
