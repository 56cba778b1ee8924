package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// OrderStore persists the open-order snapshot and the processed-order
// log.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// OpenOrders returns the last stored snapshot keyed by order ID.
func (s *OrderStore) OpenOrders(ctx context.Context, ownerID int64) (map[int64]model.OpenOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, owner_id, type_id, is_buy_order, price::text,
			volume_remain, volume_total, location_id, issued, order_data
		 FROM open_orders WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select open orders: %w", err)
	}
	defer rows.Close()

	orders := make(map[int64]model.OpenOrder)
	for rows.Next() {
		var (
			o        model.OpenOrder
			priceRaw string
		)
		if err := rows.Scan(&o.OrderID, &o.OwnerID, &o.TypeID, &o.IsBuyOrder,
			&priceRaw, &o.VolumeRemain, &o.VolumeTotal, &o.LocationID,
			&o.Issued, &o.Raw); err != nil {
			return nil, fmt.Errorf("scan open order: %w", err)
		}
		o.Price, err = decimal.NewFromString(priceRaw)
		if err != nil {
			return nil, fmt.Errorf("parse order price: %w", err)
		}
		orders[o.OrderID] = o
	}
	return orders, rows.Err()
}

// ReplaceOpenOrders upserts the latest snapshot and deletes rows for
// orders no longer open.
func (s *OrderStore) ReplaceOpenOrders(ctx context.Context, ownerID int64, orders []model.OpenOrder) error {
	batch := &pgx.Batch{}
	liveIDs := make([]int64, 0, len(orders))
	for _, o := range orders {
		liveIDs = append(liveIDs, o.OrderID)
		batch.Queue(
			`INSERT INTO open_orders (order_id, owner_id, type_id, is_buy_order,
				price, volume_remain, volume_total, location_id, issued, order_data)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (order_id, owner_id) DO UPDATE SET
				price = EXCLUDED.price,
				volume_remain = EXCLUDED.volume_remain,
				issued = EXCLUDED.issued,
				order_data = EXCLUDED.order_data`,
			o.OrderID, o.OwnerID, o.TypeID, o.IsBuyOrder, o.Price.String(),
			o.VolumeRemain, o.VolumeTotal, o.LocationID, o.Issued, []byte(o.Raw),
		)
	}
	batch.Queue(
		`DELETE FROM open_orders WHERE owner_id = $1 AND NOT (order_id = ANY($2))`,
		ownerID, liveIDs,
	)

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(orders)+1; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("replace open orders: %w", err)
		}
	}
	return nil
}

// FilterUnprocessed returns the subset of orderIDs not yet in the
// processed log.
func (s *OrderStore) FilterUnprocessed(ctx context.Context, ownerID int64, orderIDs []int64) ([]int64, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT order_id FROM processed_orders
		 WHERE owner_id = $1 AND order_id = ANY($2)`,
		ownerID, orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select processed orders: %w", err)
	}
	defer rows.Close()

	processed := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed order: %w", err)
		}
		processed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unprocessed []int64
	for _, id := range orderIDs {
		if !processed[id] {
			unprocessed = append(unprocessed, id)
		}
	}
	return unprocessed, nil
}

// MarkProcessed records orderIDs in the processed log.
func (s *OrderStore) MarkProcessed(ctx context.Context, ownerID int64, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range orderIDs {
		batch.Queue(
			`INSERT INTO processed_orders (order_id, owner_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			id, ownerID,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range orderIDs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("mark order processed: %w", err)
		}
	}
	return nil
}
