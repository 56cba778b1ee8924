package token

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwerner/evetrack/internal/model"
)

func TestToken_CachedUntilNearExpiry(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		fmt.Fprint(w, `{"access_token":"at1","refresh_token":"rt1","expires_in":1200}`)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewManager("cid", "secret", WithTokenURL(srv.URL), WithClock(clock))

	owner := &model.Owner{ID: 91, RefreshToken: "rt0"}

	tok, err := m.Token(context.Background(), owner)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "at1" {
		t.Errorf("token = %q", tok)
	}

	// 19 minutes in: 1200s - 60s skew not yet reached.
	now = now.Add(19 * time.Minute)
	if _, err := m.Token(context.Background(), owner); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes.Load())
	}

	// Past the skew boundary: must refresh.
	now = now.Add(2 * time.Minute)
	if _, err := m.Token(context.Background(), owner); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if refreshes.Load() != 2 {
		t.Errorf("refreshes = %d, want 2", refreshes.Load())
	}
}

func TestToken_RotatedRefreshTokenUsed(t *testing.T) {
	var gotRefresh atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotRefresh.Store(r.PostFormValue("refresh_token"))
		fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt-rotated","expires_in":1200}`)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewManager("cid", "secret", WithTokenURL(srv.URL), WithClock(clock))

	owner := &model.Owner{ID: 91, RefreshToken: "rt-original"}

	if _, err := m.Token(context.Background(), owner); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := gotRefresh.Load(); got != "rt-original" {
		t.Errorf("first refresh used %q", got)
	}

	now = now.Add(time.Hour)
	if _, err := m.Token(context.Background(), owner); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := gotRefresh.Load(); got != "rt-rotated" {
		t.Errorf("second refresh used %q, want rotated token", got)
	}
}

func TestToken_StaleFallbackOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "sso down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"access_token":"at1","expires_in":1200}`)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewManager("cid", "secret", WithTokenURL(srv.URL), WithClock(clock))

	owner := &model.Owner{ID: 91, RefreshToken: "rt"}

	if _, err := m.Token(context.Background(), owner); err != nil {
		t.Fatalf("Token: %v", err)
	}

	fail.Store(true)
	now = now.Add(time.Hour)

	tok, err := m.Token(context.Background(), owner)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if tok != "at1" {
		t.Errorf("token = %q, want stale at1", tok)
	}
}

func TestToken_SlowRefreshDoesNotBlockOtherOwners(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostFormValue("refresh_token") == "rt-stuck" {
			inFlight <- struct{}{}
			<-release
		}
		fmt.Fprint(w, `{"access_token":"at","expires_in":1200}`)
	}))
	defer srv.Close()
	defer close(release)

	m := NewManager("cid", "secret", WithTokenURL(srv.URL))

	stuck := &model.Owner{ID: 1, RefreshToken: "rt-stuck"}
	other := &model.Owner{ID: 2, RefreshToken: "rt-ok"}

	go func() {
		_, _ = m.Token(context.Background(), stuck)
	}()
	<-inFlight // the stalled refresh now holds whatever it locks

	done := make(chan error, 1)
	go func() {
		_, err := m.Token(context.Background(), other)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("token for one owner stalled behind another owner's refresh")
	}
}

func TestToken_ColdFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad refresh token", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewManager("cid", "secret", WithTokenURL(srv.URL))
	owner := &model.Owner{ID: 91, RefreshToken: "rt"}

	if _, err := m.Token(context.Background(), owner); err == nil {
		t.Fatal("expected error with no cached token")
	}
}

func TestToken_DefaultTTLWhenOmitted(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		fmt.Fprint(w, `{"access_token":"at"}`)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewManager("cid", "secret", WithTokenURL(srv.URL), WithClock(clock))

	owner := &model.Owner{ID: 91, RefreshToken: "rt"}

	if _, err := m.Token(context.Background(), owner); err != nil {
		t.Fatalf("Token: %v", err)
	}

	// Inside the assumed 1200s lifetime.
	now = now.Add(18 * time.Minute)
	if _, err := m.Token(context.Background(), owner); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes.Load())
	}
}
