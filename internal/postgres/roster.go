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

// OwnerStore implements the roster repository and the backfill state
// store over the owners table.
type OwnerStore struct {
	pool *pgxpool.Pool
}

// NewOwnerStore creates an OwnerStore.
func NewOwnerStore(pool *pgxpool.Pool) *OwnerStore {
	return &OwnerStore{pool: pool}
}

const ownerColumns = `owner_id, owner_name, refresh_token, created_at,
	notifications_enabled, wallet_threshold::text, is_backfilling, backfill_before_id`

func scanOwner(row pgx.Row) (*model.Owner, error) {
	var (
		owner        model.Owner
		thresholdRaw string
	)
	err := row.Scan(
		&owner.ID, &owner.Name, &owner.RefreshToken, &owner.CreatedAt,
		&owner.NotificationsEnabled, &thresholdRaw,
		&owner.IsBackfilling, &owner.BackfillBeforeID,
	)
	if err != nil {
		return nil, err
	}
	owner.WalletThreshold, err = decimal.NewFromString(thresholdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse wallet threshold: %w", err)
	}
	return &owner, nil
}

func (s *OwnerStore) Owners(ctx context.Context) ([]model.Owner, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ownerColumns+` FROM owners ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("select owners: %w", err)
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		owner, err := scanOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, *owner)
	}
	return owners, rows.Err()
}

func (s *OwnerStore) Owner(ctx context.Context, ownerID int64) (*model.Owner, error) {
	owner, err := scanOwner(s.pool.QueryRow(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE owner_id = $1`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("owner %d not found", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("select owner %d: %w", ownerID, err)
	}
	return owner, nil
}

func (s *OwnerStore) AddOwner(ctx context.Context, owner model.Owner) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO owners (owner_id, owner_name, refresh_token, created_at,
			notifications_enabled, wallet_threshold, is_backfilling, backfill_before_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (owner_id) DO UPDATE SET
			owner_name = EXCLUDED.owner_name,
			refresh_token = EXCLUDED.refresh_token`,
		owner.ID, owner.Name, owner.RefreshToken, owner.CreatedAt,
		owner.NotificationsEnabled, owner.WalletThreshold.String(),
		owner.IsBackfilling, owner.BackfillBeforeID,
	)
	if err != nil {
		return fmt.Errorf("insert owner %d: %w", owner.ID, err)
	}
	return nil
}

func (s *OwnerStore) RemoveOwner(ctx context.Context, ownerID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM owners WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("delete owner %d: %w", ownerID, err)
	}
	return nil
}

func (s *OwnerStore) UpdateRefreshToken(ctx context.Context, ownerID int64, refreshToken string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE owners SET refresh_token = $2 WHERE owner_id = $1`,
		ownerID, refreshToken)
	if err != nil {
		return fmt.Errorf("update refresh token for %d: %w", ownerID, err)
	}
	return nil
}

func (s *OwnerStore) SetNotificationsEnabled(ctx context.Context, ownerID int64, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE owners SET notifications_enabled = $2 WHERE owner_id = $1`,
		ownerID, enabled)
	if err != nil {
		return fmt.Errorf("update notifications for %d: %w", ownerID, err)
	}
	return nil
}

func (s *OwnerStore) SetWalletThreshold(ctx context.Context, ownerID int64, threshold decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE owners SET wallet_threshold = $2 WHERE owner_id = $1`,
		ownerID, threshold.String())
	if err != nil {
		return fmt.Errorf("update wallet threshold for %d: %w", ownerID, err)
	}
	return nil
}

func (s *OwnerStore) SetBackfillCursor(ctx context.Context, ownerID, beforeID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE owners SET is_backfilling = TRUE, backfill_before_id = $2
		 WHERE owner_id = $1`,
		ownerID, beforeID)
	if err != nil {
		return fmt.Errorf("set backfill cursor for %d: %w", ownerID, err)
	}
	return nil
}

func (s *OwnerStore) CompleteBackfill(ctx context.Context, ownerID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE owners SET is_backfilling = FALSE, backfill_before_id = NULL
		 WHERE owner_id = $1`,
		ownerID)
	if err != nil {
		return fmt.Errorf("complete backfill for %d: %w", ownerID, err)
	}
	return nil
}
