package esi

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mwerner/evetrack/internal/cache"
	"github.com/mwerner/evetrack/internal/model"
)

// APIError is a non-success HTTP response from ESI.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("esi: status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the request can be safely retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// request describes one ESI call before it is keyed and loaded.
type request struct {
	method string
	path   string
	params url.Values
	body   string
	owner  *model.Owner
	force  bool
}

func (r *request) cacheKey(baseURL string) string {
	var ownerID int64
	if r.owner != nil {
		ownerID = r.owner.ID
	}
	return cache.Key(baseURL+r.path, ownerID, r.params.Encode(), r.body)
}

// fetch routes the request through the conditional cache.
func (c *Client) fetch(ctx context.Context, req *request) ([]byte, http.Header, error) {
	key := req.cacheKey(c.baseURL)
	return c.cache.Fetch(ctx, key, c.loader(req), req.force)
}

// loader builds the cache.Loader that performs the HTTP request with
// conditional headers and retry.
func (c *Client) loader(req *request) cache.Loader {
	return func(ctx context.Context, etag string) (*cache.LoaderResult, error) {
		var lastErr error
		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(backoff(attempt)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

			result, err := c.doOnce(ctx, req, etag)
			if err == nil {
				return result, nil
			}
			lastErr = err

			apiErr, ok := err.(*APIError)
			if ok && !apiErr.IsRetryable() {
				return nil, err
			}
			c.logger.Warn("esi request failed, retrying",
				"path", req.path,
				"attempt", attempt+1,
				"error", err)
		}
		return nil, fmt.Errorf("%s %s after %d attempts: %w", req.method, req.path, c.maxRetries+1, lastErr)
	}
}

func (c *Client) doOnce(ctx context.Context, req *request, etag string) (*cache.LoaderResult, error) {
	u := c.baseURL + req.path
	if enc := req.params.Encode(); enc != "" {
		u += "?" + enc
	}

	var bodyReader io.Reader
	if req.body != "" {
		bodyReader = strings.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if etag != "" {
		httpReq.Header.Set("If-None-Match", etag)
	}
	if req.owner != nil {
		token, err := c.tokens.Token(ctx, req.owner)
		if err != nil {
			return nil, fmt.Errorf("access token for owner %d: %w", req.owner.ID, err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	expires := cache.ParseExpires(resp.Header.Get("Expires"))

	if resp.StatusCode == http.StatusNotModified {
		return &cache.LoaderResult{
			NotModified: true,
			Expires:     expires,
			Headers:     resp.Header,
		}, nil
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	return &cache.LoaderResult{
		Payload: payload,
		ETag:    resp.Header.Get("ETag"),
		Expires: expires,
		Headers: resp.Header,
	}, nil
}

// backoff returns an exponential delay with jitter for the given
// attempt (1-based).
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
