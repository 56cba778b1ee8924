package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NameStore caches resolved names.
type NameStore struct {
	pool *pgxpool.Pool
}

// NewNameStore creates a NameStore.
func NewNameStore(pool *pgxpool.Pool) *NameStore {
	return &NameStore{pool: pool}
}

func (s *NameStore) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_id, name FROM name_cache WHERE item_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select names: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (s *NameStore) SaveNames(ctx context.Context, names map[int64]string) error {
	if len(names) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, name := range names {
		batch.Queue(
			`INSERT INTO name_cache (item_id, name) VALUES ($1, $2)
			 ON CONFLICT (item_id) DO UPDATE SET name = EXCLUDED.name`,
			id, name,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range names {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save name: %w", err)
		}
	}
	return nil
}
