// Package backfill walks an owner's transaction history backwards
// until the beginning, one page per poll cycle.
//
// A new owner first gets a fast sync of their most recent page, then a
// gradual walk: each step asks for transactions older than a durable
// cursor and moves the cursor down. The cursor lives on the owner row,
// so a restart resumes exactly where the walk stopped.
package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mwerner/evetrack/internal/model"
)

// Fetcher pulls transaction pages from the API.
type Fetcher interface {
	WalletTransactions(ctx context.Context, owner *model.Owner, fromID int64) ([]model.Transaction, error)
}

// StateStore persists backfill progress on the owner.
type StateStore interface {
	// SetBackfillCursor marks the owner as backfilling with the given
	// cursor.
	SetBackfillCursor(ctx context.Context, ownerID, beforeID int64) error

	// CompleteBackfill clears the backfill flag and cursor.
	CompleteBackfill(ctx context.Context, ownerID int64) error
}

// Ingester records fetched historical transactions. The history path
// stores sales as already settled so the live profit loop never draws
// them against the current lot queue.
type Ingester interface {
	IngestHistory(ctx context.Context, txs []model.Transaction) ([]model.Transaction, error)
}

// Machine drives backfills for owners.
type Machine struct {
	fetcher  Fetcher
	state    StateStore
	ingester Ingester
	logger   *slog.Logger
}

// New creates a Machine.
func New(fetcher Fetcher, state StateStore, ingester Ingester, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{fetcher: fetcher, state: state, ingester: ingester, logger: logger}
}

// Phase reports where the owner is in the backfill lifecycle.
func Phase(owner *model.Owner) model.BackfillPhase {
	switch {
	case !owner.IsBackfilling && owner.BackfillBeforeID == nil:
		return model.BackfillComplete
	case owner.IsBackfilling && owner.BackfillBeforeID != nil:
		return model.BackfillGradual
	default:
		return model.BackfillNotStarted
	}
}

// StartFastSync ingests the owner's most recent transactions and arms
// the gradual walk behind the oldest one seen. An owner with no
// history at all is complete immediately.
func (m *Machine) StartFastSync(ctx context.Context, owner *model.Owner) error {
	txs, err := m.fetcher.WalletTransactions(ctx, owner, 0)
	if err != nil {
		return fmt.Errorf("fast sync fetch: %w", err)
	}
	if _, err := m.ingester.IngestHistory(ctx, txs); err != nil {
		return fmt.Errorf("fast sync ingest: %w", err)
	}

	if len(txs) == 0 {
		m.logger.Info("no transaction history, backfill complete",
			"owner_id", owner.ID)
		return m.complete(ctx, owner)
	}

	cursor := minTransactionID(txs)
	if err := m.state.SetBackfillCursor(ctx, owner.ID, cursor); err != nil {
		return fmt.Errorf("arm backfill: %w", err)
	}
	owner.IsBackfilling = true
	owner.BackfillBeforeID = &cursor

	m.logger.Info("fast sync done, gradual backfill armed",
		"owner_id", owner.ID,
		"transactions", len(txs),
		"cursor", cursor)
	return nil
}

// Step fetches one page older than the cursor and advances it. The
// walk finishes when a page comes back empty or fails to move the
// cursor down, which is how the API signals the start of history.
func (m *Machine) Step(ctx context.Context, owner *model.Owner) error {
	if Phase(owner) != model.BackfillGradual {
		return nil
	}
	cursor := *owner.BackfillBeforeID

	txs, err := m.fetcher.WalletTransactions(ctx, owner, cursor)
	if err != nil {
		return fmt.Errorf("backfill fetch before %d: %w", cursor, err)
	}
	if _, err := m.ingester.IngestHistory(ctx, txs); err != nil {
		return fmt.Errorf("backfill ingest: %w", err)
	}

	if len(txs) == 0 {
		m.logger.Info("backfill reached start of history",
			"owner_id", owner.ID)
		return m.complete(ctx, owner)
	}

	minID := minTransactionID(txs)
	if minID >= cursor {
		m.logger.Info("backfill cursor stopped moving, treating as complete",
			"owner_id", owner.ID,
			"cursor", cursor,
			"min_id", minID)
		return m.complete(ctx, owner)
	}

	if err := m.state.SetBackfillCursor(ctx, owner.ID, minID); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	owner.BackfillBeforeID = &minID
	return nil
}

func (m *Machine) complete(ctx context.Context, owner *model.Owner) error {
	if err := m.state.CompleteBackfill(ctx, owner.ID); err != nil {
		return fmt.Errorf("complete backfill: %w", err)
	}
	owner.IsBackfilling = false
	owner.BackfillBeforeID = nil
	return nil
}

func minTransactionID(txs []model.Transaction) int64 {
	min := txs[0].TransactionID
	for _, tx := range txs[1:] {
		if tx.TransactionID < min {
			min = tx.TransactionID
		}
	}
	return min
}
