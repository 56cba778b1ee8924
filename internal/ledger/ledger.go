package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// Ledger ingests wallet transactions and answers cost-basis queries.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a Ledger over store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// IngestTransactions records txs, opening a purchase lot for every
// personal buy. Transactions and lots land in one atomic store call,
// both keyed by the transaction id, so an interrupted poll can simply
// run again: a rerun either replays the whole batch or skips what
// already landed, never half of a buy. New personal sales stay queued
// in UnprocessedSales until their profit is reported.
func (l *Ledger) IngestTransactions(ctx context.Context, txs []model.Transaction) ([]model.Transaction, error) {
	return l.ingest(ctx, txs, false)
}

// IngestHistory records backfilled transactions. Historical sales are
// stored already processed: they predate live tracking, so consuming
// them against the current lot queue (or announcing them) would be
// wrong.
func (l *Ledger) IngestHistory(ctx context.Context, txs []model.Transaction) ([]model.Transaction, error) {
	return l.ingest(ctx, txs, true)
}

func (l *Ledger) ingest(ctx context.Context, txs []model.Transaction, salesProcessed bool) ([]model.Transaction, error) {
	var lots []model.PurchaseLot
	for _, tx := range txs {
		if !tx.IsBuy || !tx.IsPersonal {
			continue
		}
		lots = append(lots, model.PurchaseLot{
			TransactionID: tx.TransactionID,
			OwnerID:       tx.OwnerID,
			TypeID:        tx.TypeID,
			Quantity:      tx.Quantity,
			UnitCost:      tx.UnitPrice,
			PurchasedAt:   tx.Date,
		})
	}

	inserted, err := l.store.InsertTransactions(ctx, txs, lots, salesProcessed)
	if err != nil {
		return nil, fmt.Errorf("insert transactions: %w", err)
	}
	return inserted, nil
}

// UnprocessedSales returns the owner's personal sales still awaiting
// lot consumption and profit reporting, oldest first.
func (l *Ledger) UnprocessedSales(ctx context.Context, ownerID int64) ([]model.Transaction, error) {
	sales, err := l.store.UnprocessedSales(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load unprocessed sales: %w", err)
	}
	return sales, nil
}

// MarkSaleProcessed records that a sale has been consumed and
// reported. Until this is called the sale stays in UnprocessedSales,
// so a cycle that dies mid-sale picks it up again.
func (l *Ledger) MarkSaleProcessed(ctx context.Context, transactionID, ownerID int64) error {
	if err := l.store.MarkSaleProcessed(ctx, transactionID, ownerID); err != nil {
		return fmt.Errorf("mark sale %d processed: %w", transactionID, err)
	}
	return nil
}

// ConsumeForSale drains quantity units from the owner's oldest lots of
// typeID and returns the summed cost of the drained units. ok is false
// when the open lots could not cover the full quantity; whatever was
// available has still been consumed, but the returned cost covers only
// those units and must not be reported as a complete basis.
func (l *Ledger) ConsumeForSale(ctx context.Context, ownerID, typeID, quantity int64) (decimal.Decimal, bool, error) {
	lots, err := l.store.LotsForType(ctx, ownerID, typeID)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("load lots: %w", err)
	}

	cogs := decimal.Zero
	remaining := quantity
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}
		cogs = cogs.Add(lot.UnitCost.Mul(decimal.NewFromInt(take)))
		remaining -= take

		if take == lot.Quantity {
			if err := l.store.DeleteLot(ctx, lot.LotID); err != nil {
				return decimal.Zero, false, fmt.Errorf("delete lot %d: %w", lot.LotID, err)
			}
		} else {
			if err := l.store.UpdateLotQuantity(ctx, lot.LotID, lot.Quantity-take); err != nil {
				return decimal.Zero, false, fmt.Errorf("shrink lot %d: %w", lot.LotID, err)
			}
		}
	}

	if remaining > 0 {
		l.logger.Warn("sale exceeds tracked purchase lots",
			"owner_id", ownerID,
			"type_id", typeID,
			"sold", quantity,
			"uncovered", remaining)
		return cogs, false, nil
	}
	return cogs, true, nil
}
