package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mwerner/evetrack/internal/cache"
)

// CacheStore persists conditional-cache entries in response_cache.
type CacheStore struct {
	pool *pgxpool.Pool
}

// NewCacheStore creates a CacheStore.
func NewCacheStore(pool *pgxpool.Pool) *CacheStore {
	return &CacheStore{pool: pool}
}

func (s *CacheStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	var (
		entry      cache.Entry
		headersRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT cache_key, payload, COALESCE(etag, ''), expires_at, headers
		 FROM response_cache WHERE cache_key = $1`,
		key,
	).Scan(&entry.Key, &entry.Payload, &entry.ETag, &entry.ExpiresAt, &headersRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}

	if len(headersRaw) > 0 {
		if err := json.Unmarshal(headersRaw, &entry.Headers); err != nil {
			return nil, fmt.Errorf("decode cached headers: %w", err)
		}
	}
	return &entry, nil
}

func (s *CacheStore) Put(ctx context.Context, entry *cache.Entry) error {
	headersRaw, err := encodeHeaders(entry.Headers)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO response_cache (cache_key, payload, etag, expires_at, headers)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cache_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			etag = EXCLUDED.etag,
			expires_at = EXCLUDED.expires_at,
			headers = EXCLUDED.headers`,
		entry.Key, entry.Payload, entry.ETag, entry.ExpiresAt, headersRaw,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) Touch(ctx context.Context, key string, expiresAt time.Time, headers http.Header) error {
	headersRaw, err := encodeHeaders(headers)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE response_cache
		 SET expires_at = $2, headers = COALESCE($3, headers)
		 WHERE cache_key = $1`,
		key, expiresAt, headersRaw,
	)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	return nil
}

// Prune drops entries that expired before cutoff. Conditional entries
// are still useful after expiry (the ETag avoids a re-download), so
// callers pass a cutoff well in the past.
func (s *CacheStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM response_cache WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

func encodeHeaders(headers http.Header) ([]byte, error) {
	if headers == nil {
		return nil, nil
	}
	raw, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return raw, nil
}
