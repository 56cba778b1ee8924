package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTTL is applied when the upstream response carries no usable
// Expires header.
const DefaultTTL = 60 * time.Second

// LoaderResult is what a Loader observed upstream.
type LoaderResult struct {
	// NotModified is set when the server answered 304 to the
	// conditional request; Payload is empty in that case.
	NotModified bool
	Payload     []byte
	ETag        string
	Expires     time.Time
	Headers     http.Header
}

// Loader performs the actual upstream request. etag is empty when there
// is no cached entry to revalidate against.
type Loader func(ctx context.Context, etag string) (*LoaderResult, error)

// Cache serves responses out of a Store, revalidating stale entries
// with conditional requests.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the fallback expiry applied when the server sends
// no Expires header.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Cache backed by store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    DefaultTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the cache key for a request. ownerID 0 means a public
// (unauthenticated) endpoint; params and body distinguish otherwise
// identical URLs.
func Key(url string, ownerID int64, params, body string) string {
	owner := "public"
	if ownerID != 0 {
		owner = fmt.Sprintf("%d", ownerID)
	}
	raw := fmt.Sprintf("%s:%s:%s:%s", url, owner, params, body)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Fetch returns the payload for key, loading it via loader when the
// cached copy is missing or stale. force skips the freshness check and
// always revalidates (still sending If-None-Match when an ETag is
// cached). When revalidation fails and a cached copy exists, the stale
// copy is served.
func (c *Cache) Fetch(ctx context.Context, key string, loader Loader, force bool) ([]byte, http.Header, error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("cache lookup: %w", err)
	}

	now := c.now()
	if entry != nil && !force && entry.Fresh(now) {
		return entry.Payload, entry.Headers, nil
	}

	etag := ""
	if entry != nil {
		etag = entry.ETag
	}

	result, err := loader(ctx, etag)
	if err != nil {
		if entry != nil {
			c.logger.Warn("serving stale cache entry after fetch failure",
				"key", key,
				"error", err)
			return entry.Payload, entry.Headers, nil
		}
		return nil, nil, err
	}

	expiresAt := result.Expires
	if expiresAt.IsZero() {
		expiresAt = now.Add(c.ttl)
	}

	if result.NotModified {
		if entry == nil {
			return nil, nil, fmt.Errorf("cache key %s: 304 with no cached entry", key)
		}
		headers := result.Headers
		if headers == nil {
			headers = entry.Headers
		}
		if err := c.store.Touch(ctx, key, expiresAt, headers); err != nil {
			return nil, nil, fmt.Errorf("renew cache entry: %w", err)
		}
		return entry.Payload, headers, nil
	}

	stored := &Entry{
		Key:       key,
		Payload:   result.Payload,
		ETag:      result.ETag,
		ExpiresAt: expiresAt,
		Headers:   result.Headers,
	}
	if err := c.store.Put(ctx, stored); err != nil {
		return nil, nil, fmt.Errorf("store cache entry: %w", err)
	}
	return result.Payload, result.Headers, nil
}

// ParseExpires interprets an Expires header value in RFC1123 format.
// The zero time is returned when the header is absent or malformed.
func ParseExpires(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC1123, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
