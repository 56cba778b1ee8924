package cache

import (
	"context"
	"net/http"
	"time"
)

// Entry is one cached response.
type Entry struct {
	Key       string
	Payload   []byte
	ETag      string
	ExpiresAt time.Time
	Headers   http.Header
}

// Fresh reports whether the entry can be served without revalidation.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Store persists cache entries. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Touch(ctx context.Context, key string, expiresAt time.Time, headers http.Header) error
}
