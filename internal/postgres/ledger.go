package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// LedgerStore persists wallet transactions and purchase lots.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// InsertTransactions batch-inserts transactions and their purchase
// lots in a single database transaction, returning only the wallet
// transactions not already present. Both inserts dedupe on
// (transaction_id, owner_id), so a retried batch converges: either
// everything lands together or nothing does, and a rerun can never
// open a duplicate lot or drop one.
func (s *LedgerStore) InsertTransactions(ctx context.Context, txs []model.Transaction, lots []model.PurchaseLot, salesProcessed bool) ([]model.Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(
			`INSERT INTO transactions (transaction_id, owner_id, type_id, is_buy,
				is_personal, quantity, unit_price, client_id, location_id,
				journal_ref_id, date, sale_processed)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (transaction_id, owner_id) DO NOTHING
			 RETURNING transaction_id`,
			tx.TransactionID, tx.OwnerID, tx.TypeID, tx.IsBuy,
			tx.IsPersonal, tx.Quantity, tx.UnitPrice.String(), tx.ClientID,
			tx.LocationID, tx.JournalRefID, tx.Date, salesProcessed,
		)
	}
	for _, lot := range lots {
		batch.Queue(
			`INSERT INTO purchase_lots (transaction_id, owner_id, type_id, quantity, unit_cost, purchased_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (transaction_id, owner_id) DO NOTHING`,
			lot.TransactionID, lot.OwnerID, lot.TypeID, lot.Quantity,
			lot.UnitCost.String(), lot.PurchasedAt,
		)
	}

	results := dbtx.SendBatch(ctx, batch)
	inserted, err := collectInserted(results, txs, len(lots))
	if cerr := results.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close batch: %w", cerr)
	}
	if err != nil {
		return nil, err
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func collectInserted(results pgx.BatchResults, txs []model.Transaction, lotCount int) ([]model.Transaction, error) {
	var inserted []model.Transaction
	for _, tx := range txs {
		var id int64
		err := results.QueryRow().Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert transaction %d: %w", tx.TransactionID, err)
		}
		inserted = append(inserted, tx)
	}
	for i := 0; i < lotCount; i++ {
		if _, err := results.Exec(); err != nil {
			return nil, fmt.Errorf("insert lot: %w", err)
		}
	}
	return inserted, nil
}

// UnprocessedSales returns the owner's personal sales whose lot
// consumption has not been recorded yet, oldest first so FIFO replay
// matches the order the sales happened.
func (s *LedgerStore) UnprocessedSales(ctx context.Context, ownerID int64) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT transaction_id, owner_id, type_id, is_buy, is_personal, quantity,
			unit_price::text, client_id, location_id, journal_ref_id, date
		 FROM transactions
		 WHERE owner_id = $1 AND NOT is_buy AND is_personal AND NOT sale_processed
		 ORDER BY date, transaction_id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select unprocessed sales: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// MarkSaleProcessed flags one sale as consumed and reported.
func (s *LedgerStore) MarkSaleProcessed(ctx context.Context, transactionID, ownerID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE transactions SET sale_processed = TRUE
		 WHERE transaction_id = $1 AND owner_id = $2`,
		transactionID, ownerID)
	if err != nil {
		return fmt.Errorf("mark sale %d processed: %w", transactionID, err)
	}
	return nil
}

func (s *LedgerStore) LotsForType(ctx context.Context, ownerID, typeID int64) ([]model.PurchaseLot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lot_id, transaction_id, owner_id, type_id, quantity, unit_cost::text, purchased_at
		 FROM purchase_lots
		 WHERE owner_id = $1 AND type_id = $2
		 ORDER BY purchased_at, lot_id`,
		ownerID, typeID,
	)
	if err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	defer rows.Close()

	var lots []model.PurchaseLot
	for rows.Next() {
		var (
			lot     model.PurchaseLot
			costRaw string
		)
		if err := rows.Scan(&lot.LotID, &lot.TransactionID, &lot.OwnerID,
			&lot.TypeID, &lot.Quantity, &costRaw, &lot.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lot.UnitCost, err = decimal.NewFromString(costRaw)
		if err != nil {
			return nil, fmt.Errorf("parse unit cost: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (s *LedgerStore) UpdateLotQuantity(ctx context.Context, lotID int64, quantity int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE purchase_lots SET quantity = $2 WHERE lot_id = $1`,
		lotID, quantity)
	if err != nil {
		return fmt.Errorf("update lot %d: %w", lotID, err)
	}
	return nil
}

func (s *LedgerStore) DeleteLot(ctx context.Context, lotID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM purchase_lots WHERE lot_id = $1`, lotID)
	if err != nil {
		return fmt.Errorf("delete lot %d: %w", lotID, err)
	}
	return nil
}

// TransactionsThrough returns all of an owner's transactions dated at
// or before through, for profit replay.
func (s *LedgerStore) TransactionsThrough(ctx context.Context, ownerID int64, through time.Time) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT transaction_id, owner_id, type_id, is_buy, is_personal, quantity,
			unit_price::text, client_id, location_id, journal_ref_id, date
		 FROM transactions
		 WHERE owner_id = $1 AND date <= $2
		 ORDER BY date, transaction_id`,
		ownerID, through,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	var txs []model.Transaction
	for rows.Next() {
		var (
			tx       model.Transaction
			priceRaw string
		)
		if err := rows.Scan(&tx.TransactionID, &tx.OwnerID, &tx.TypeID, &tx.IsBuy,
			&tx.IsPersonal, &tx.Quantity, &priceRaw, &tx.ClientID,
			&tx.LocationID, &tx.JournalRefID, &tx.Date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var err error
		tx.UnitPrice, err = decimal.NewFromString(priceRaw)
		if err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
