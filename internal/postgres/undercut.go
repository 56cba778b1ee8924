package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// UndercutStore persists detector statuses.
type UndercutStore struct {
	pool *pgxpool.Pool
}

// NewUndercutStore creates an UndercutStore.
func NewUndercutStore(pool *pgxpool.Pool) *UndercutStore {
	return &UndercutStore{pool: pool}
}

// Statuses returns the previous evaluation keyed by order ID.
func (s *UndercutStore) Statuses(ctx context.Context, ownerID int64) (map[int64]model.UndercutStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, owner_id, is_undercut, competitor_price::text,
			COALESCE(competitor_location_id, 0), COALESCE(competitor_volume, 0)
		 FROM undercut_statuses WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select undercut statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[int64]model.UndercutStatus)
	for rows.Next() {
		var (
			st       model.UndercutStatus
			priceRaw *string
		)
		if err := rows.Scan(&st.OrderID, &st.OwnerID, &st.IsUndercut,
			&priceRaw, &st.CompetitorLocationID, &st.CompetitorVolume); err != nil {
			return nil, fmt.Errorf("scan undercut status: %w", err)
		}
		if priceRaw != nil {
			price, err := decimal.NewFromString(*priceRaw)
			if err != nil {
				return nil, fmt.Errorf("parse competitor price: %w", err)
			}
			st.CompetitorPrice = &price
		}
		statuses[st.OrderID] = st
	}
	return statuses, rows.Err()
}

// ReplaceStatuses upserts the latest evaluation and prunes rows for
// orders no longer open.
func (s *UndercutStore) ReplaceStatuses(ctx context.Context, ownerID int64, statuses []model.UndercutStatus) error {
	batch := &pgx.Batch{}
	liveIDs := make([]int64, 0, len(statuses))
	for _, st := range statuses {
		liveIDs = append(liveIDs, st.OrderID)

		var priceRaw *string
		if st.CompetitorPrice != nil {
			v := st.CompetitorPrice.String()
			priceRaw = &v
		}
		batch.Queue(
			`INSERT INTO undercut_statuses (order_id, owner_id, is_undercut,
				competitor_price, competitor_location_id, competitor_volume)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (order_id, owner_id) DO UPDATE SET
				is_undercut = EXCLUDED.is_undercut,
				competitor_price = EXCLUDED.competitor_price,
				competitor_location_id = EXCLUDED.competitor_location_id,
				competitor_volume = EXCLUDED.competitor_volume`,
			st.OrderID, st.OwnerID, st.IsUndercut,
			priceRaw, st.CompetitorLocationID, st.CompetitorVolume,
		)
	}
	batch.Queue(
		`DELETE FROM undercut_statuses WHERE owner_id = $1 AND NOT (order_id = ANY($2))`,
		ownerID, liveIDs,
	)

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(statuses)+1; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("replace undercut statuses: %w", err)
		}
	}
	return nil
}

// LocationStore caches location -> system -> region chains.
type LocationStore struct {
	pool *pgxpool.Pool
}

// NewLocationStore creates a LocationStore.
func NewLocationStore(pool *pgxpool.Pool) *LocationStore {
	return &LocationStore{pool: pool}
}

func (s *LocationStore) RegionForLocation(ctx context.Context, locationID int64) (int64, bool, error) {
	var regionID int64
	err := s.pool.QueryRow(ctx,
		`SELECT region_id FROM location_cache
		 WHERE location_id = $1 AND region_id IS NOT NULL`,
		locationID,
	).Scan(&regionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select location: %w", err)
	}
	return regionID, true, nil
}

func (s *LocationStore) SaveLocation(ctx context.Context, locationID, systemID, regionID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO location_cache (location_id, system_id, region_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (location_id) DO UPDATE SET
			system_id = EXCLUDED.system_id,
			region_id = EXCLUDED.region_id`,
		locationID, systemID, regionID,
	)
	if err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	return nil
}
