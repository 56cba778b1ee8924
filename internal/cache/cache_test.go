package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestKey(t *testing.T) {
	base := Key("https://example.test/v1/orders", 123, "page=1", "")

	if got := Key("https://example.test/v1/orders", 123, "page=1", ""); got != base {
		t.Error("identical inputs should produce identical keys")
	}
	if got := Key("https://example.test/v1/orders", 456, "page=1", ""); got == base {
		t.Error("different owners should produce different keys")
	}
	if got := Key("https://example.test/v1/orders", 123, "page=2", ""); got == base {
		t.Error("different params should produce different keys")
	}
	if got := Key("https://example.test/v1/orders", 0, "page=1", ""); got == base {
		t.Error("public requests should not share keys with owner requests")
	}
}

func TestFetch_FreshHitSkipsLoader(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Put(context.Background(), &Entry{
		Key:       "k",
		Payload:   []byte(`[1,2,3]`),
		ETag:      `"abc"`,
		ExpiresAt: now.Add(30 * time.Second),
	})

	c := New(store, WithClock(fixedClock(now)))

	called := false
	payload, _, err := c.Fetch(context.Background(), "k", func(context.Context, string) (*LoaderResult, error) {
		called = true
		return nil, errors.New("should not be called")
	}, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if called {
		t.Error("loader called for a fresh entry")
	}
	if string(payload) != `[1,2,3]` {
		t.Errorf("payload = %s", payload)
	}
}

func TestFetch_NotModifiedRenewsExpiryOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Put(context.Background(), &Entry{
		Key:       "k",
		Payload:   []byte(`[1,2,3]`),
		ETag:      `"abc"`,
		ExpiresAt: now.Add(-time.Second),
	})

	c := New(store, WithClock(fixedClock(now)))

	var gotETag string
	newExpiry := now.Add(45 * time.Second)
	payload, _, err := c.Fetch(context.Background(), "k", func(_ context.Context, etag string) (*LoaderResult, error) {
		gotETag = etag
		return &LoaderResult{NotModified: true, Expires: newExpiry}, nil
	}, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotETag != `"abc"` {
		t.Errorf("loader received etag %q, want %q", gotETag, `"abc"`)
	}
	if string(payload) != `[1,2,3]` {
		t.Errorf("payload = %s, want cached body", payload)
	}

	entry, _ := store.Get(context.Background(), "k")
	if !entry.ExpiresAt.Equal(newExpiry) {
		t.Errorf("expiry = %v, want %v", entry.ExpiresAt, newExpiry)
	}
	if entry.ETag != `"abc"` {
		t.Errorf("etag changed to %q on 304", entry.ETag)
	}
	if string(entry.Payload) != `[1,2,3]` {
		t.Error("payload changed on 304")
	}
}

func TestFetch_NewPayloadStored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	c := New(store, WithClock(fixedClock(now)))

	headers := http.Header{"X-Pages": []string{"3"}}
	payload, gotHeaders, err := c.Fetch(context.Background(), "k", func(_ context.Context, etag string) (*LoaderResult, error) {
		if etag != "" {
			t.Errorf("loader received etag %q on a cold miss", etag)
		}
		return &LoaderResult{
			Payload: []byte(`{"v":1}`),
			ETag:    `"xyz"`,
			Expires: now.Add(time.Minute),
			Headers: headers,
		}, nil
	}, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload) != `{"v":1}` {
		t.Errorf("payload = %s", payload)
	}
	if gotHeaders.Get("X-Pages") != "3" {
		t.Error("response headers not propagated")
	}

	entry, _ := store.Get(context.Background(), "k")
	if entry == nil {
		t.Fatal("entry not stored")
	}
	if entry.ETag != `"xyz"` {
		t.Errorf("stored etag = %q", entry.ETag)
	}
}

func TestFetch_DefaultTTLWhenNoExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	c := New(store, WithClock(fixedClock(now)))

	_, _, err := c.Fetch(context.Background(), "k", func(context.Context, string) (*LoaderResult, error) {
		return &LoaderResult{Payload: []byte(`{}`)}, nil
	}, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	entry, _ := store.Get(context.Background(), "k")
	want := now.Add(DefaultTTL)
	if !entry.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", entry.ExpiresAt, want)
	}
}

func TestFetch_StaleServeOnFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Put(context.Background(), &Entry{
		Key:       "k",
		Payload:   []byte(`stale`),
		ExpiresAt: now.Add(-time.Hour),
	})

	c := New(store, WithClock(fixedClock(now)))

	payload, _, err := c.Fetch(context.Background(), "k", func(context.Context, string) (*LoaderResult, error) {
		return nil, errors.New("connection refused")
	}, false)
	if err != nil {
		t.Fatalf("expected stale serve, got error: %v", err)
	}
	if string(payload) != "stale" {
		t.Errorf("payload = %s, want stale copy", payload)
	}
}

func TestFetch_ColdMissFailurePropagates(t *testing.T) {
	c := New(NewMemoryStore())

	wantErr := errors.New("connection refused")
	_, _, err := c.Fetch(context.Background(), "k", func(context.Context, string) (*LoaderResult, error) {
		return nil, wantErr
	}, false)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestFetch_ForceRevalidatesFreshEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Put(context.Background(), &Entry{
		Key:       "k",
		Payload:   []byte(`old`),
		ETag:      `"abc"`,
		ExpiresAt: now.Add(time.Hour),
	})

	c := New(store, WithClock(fixedClock(now)))

	called := false
	payload, _, err := c.Fetch(context.Background(), "k", func(_ context.Context, etag string) (*LoaderResult, error) {
		called = true
		if etag != `"abc"` {
			t.Errorf("forced revalidation dropped etag, got %q", etag)
		}
		return &LoaderResult{Payload: []byte(`new`), ETag: `"def"`}, nil
	}, true)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !called {
		t.Fatal("force did not bypass freshness")
	}
	if string(payload) != "new" {
		t.Errorf("payload = %s", payload)
	}
}

func TestParseExpires(t *testing.T) {
	got := ParseExpires("Sun, 01 Mar 2026 12:30:00 UTC")
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseExpires = %v, want %v", got, want)
	}

	if !ParseExpires("").IsZero() {
		t.Error("empty header should parse to zero time")
	}
	if !ParseExpires("not a date").IsZero() {
		t.Error("malformed header should parse to zero time")
	}
}
