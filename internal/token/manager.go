// Package token exchanges refresh tokens for access tokens and caches
// them per owner until shortly before expiry.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mwerner/evetrack/internal/model"
)

const (
	// ExpirySkew is subtracted from the advertised lifetime so a token
	// is never handed out moments before it lapses server-side.
	ExpirySkew = 60 * time.Second

	// defaultTTL is assumed when the SSO omits expires_in.
	defaultTTL = 1200 * time.Second

	defaultTokenURL = "https://login.eveonline.com/v2/oauth/token"
)

type credential struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// entry holds one owner's credential. Its mutex serializes refreshes
// for that owner only, so a slow SSO exchange never blocks tokens for
// anyone else.
type entry struct {
	mu sync.Mutex
	credential
}

// Manager issues access tokens for owners, refreshing through the SSO
// when the cached token is near expiry. A failed refresh falls back to
// the previous token so one SSO hiccup does not stall polling.
type Manager struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex // guards the entries map, never held across a refresh
	entries map[int64]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenURL overrides the SSO token endpoint.
func WithTokenURL(u string) Option {
	return func(m *Manager) {
		if u != "" {
			m.tokenURL = u
		}
	}
}

// WithHTTPClient replaces the HTTP client used for refresh calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) {
		if hc != nil {
			m.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager authenticating as the given SSO
// application.
func NewManager(clientID, clientSecret string, opts ...Option) *Manager {
	m := &Manager{
		tokenURL:     defaultTokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       slog.Default(),
		now:          time.Now,
		entries:      make(map[int64]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a valid access token for owner, refreshing if the
// cached one expires within ExpirySkew. Only the owner's own entry is
// locked during the refresh round trip.
func (m *Manager) Token(ctx context.Context, owner *model.Owner) (string, error) {
	e := m.entryFor(owner.ID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.accessToken != "" && m.now().Before(e.expiresAt.Add(-ExpirySkew)) {
		return e.accessToken, nil
	}

	refreshToken := owner.RefreshToken
	if e.refreshToken != "" {
		refreshToken = e.refreshToken
	}

	fresh, err := m.refresh(ctx, refreshToken)
	if err != nil {
		if e.accessToken != "" {
			m.logger.Warn("token refresh failed, reusing previous token",
				"owner_id", owner.ID,
				"error", err)
			return e.accessToken, nil
		}
		return "", fmt.Errorf("refresh token for owner %d: %w", owner.ID, err)
	}

	e.credential = *fresh
	return e.accessToken, nil
}

// Invalidate drops the cached token for an owner, forcing a refresh on
// the next request.
func (m *Manager) Invalidate(ownerID int64) {
	m.mu.Lock()
	e := m.entries[ownerID]
	m.mu.Unlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	e.credential = credential{}
	e.mu.Unlock()
}

func (m *Manager) entryFor(ownerID int64) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[ownerID]
	if e == nil {
		e = &entry{}
		m.entries[ownerID] = e
	}
	return e
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (*credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(m.clientID, m.clientSecret)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sso status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("sso response missing access_token")
	}

	ttl := defaultTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}
	return &credential{
		accessToken:  tr.AccessToken,
		refreshToken: tr.RefreshToken,
		expiresAt:    m.now().Add(ttl),
	}, nil
}
