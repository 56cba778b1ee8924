package ledger

import (
	"context"

	"github.com/mwerner/evetrack/internal/model"
)

// Store persists transactions and purchase lots.
type Store interface {
	// InsertTransactions writes transactions and their purchase lots as
	// one atomic unit, skipping rows already present, and returns only
	// the newly inserted transactions. Lots carry the key of their
	// originating buy, so a retried ingest cannot open a second lot for
	// the same transaction. salesProcessed controls whether personal
	// sales enter the store already excluded from UnprocessedSales.
	InsertTransactions(ctx context.Context, txs []model.Transaction, lots []model.PurchaseLot, salesProcessed bool) ([]model.Transaction, error)

	// UnprocessedSales returns the owner's personal sales that have not
	// yet been consumed against the lot queue, oldest first.
	UnprocessedSales(ctx context.Context, ownerID int64) ([]model.Transaction, error)

	// MarkSaleProcessed records that a sale's lot consumption and
	// profit report finished.
	MarkSaleProcessed(ctx context.Context, transactionID, ownerID int64) error

	// LotsForType returns the owner's open lots for a type, oldest
	// purchase first.
	LotsForType(ctx context.Context, ownerID, typeID int64) ([]model.PurchaseLot, error)

	// UpdateLotQuantity shrinks a partially consumed lot in place.
	UpdateLotQuantity(ctx context.Context, lotID int64, quantity int64) error

	// DeleteLot removes a fully consumed lot.
	DeleteLot(ctx context.Context, lotID int64) error
}
