package esi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mwerner/evetrack/internal/cache"
	"github.com/mwerner/evetrack/internal/model"
)

const (
	defaultBaseURL    = "https://esi.evetech.net"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultPageDelay  = 100 * time.Millisecond
)

// TokenSource supplies a valid access token for an owner.
type TokenSource interface {
	Token(ctx context.Context, owner *model.Owner) (string, error)
}

// Client talks to the ESI REST API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	cache      *cache.Cache
	tokens     TokenSource
	maxRetries int
	pageDelay  time.Duration
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithPageDelay sets the pause between successive page fetches.
func WithPageDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.pageDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates an ESI client. responses are cached in respCache;
// tokens supplies access tokens for authenticated endpoints.
func NewClient(respCache *cache.Cache, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		userAgent:  "evetrack",
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      respCache,
		tokens:     tokens,
		maxRetries: defaultMaxRetries,
		pageDelay:  defaultPageDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
