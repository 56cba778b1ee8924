package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mwerner/evetrack/internal/model"
)

// fetchPaged walks an X-Pages paginated endpoint and decodes every page
// into a single slice.
//
// Page 1 is always revalidated so a changed page count cannot be served
// from a fresh-but-outdated entry; later pages go through the cache
// normally. Any page failure aborts the whole walk: a partial result
// would look like items disappearing downstream.
func fetchPaged[T any](ctx context.Context, c *Client, path string, params url.Values, owner *model.Owner) ([]T, error) {
	first := &request{
		method: http.MethodGet,
		path:   path,
		params: withPage(params, 1),
		owner:  owner,
		force:  true,
	}
	payload, headers, err := c.fetch(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page 1: %w", path, err)
	}

	page, err := decodePage[T](payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s page 1: %w", path, err)
	}

	totalPages := pageCount(headers)
	items := page
	if len(page) == 0 {
		return items, nil
	}

	for n := 2; n <= totalPages; n++ {
		select {
		case <-time.After(c.pageDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		req := &request{
			method: http.MethodGet,
			path:   path,
			params: withPage(params, n),
			owner:  owner,
		}
		payload, _, err := c.fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", path, n, err)
		}
		page, err := decodePage[T](payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s page %d: %w", path, n, err)
		}
		if len(page) == 0 {
			break
		}
		items = append(items, page...)
	}

	return items, nil
}

func decodePage[T any](payload []byte) ([]T, error) {
	var page []T
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// pageCount reads X-Pages, defaulting to a single page.
func pageCount(headers http.Header) int {
	v := headers.Get("X-Pages")
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func withPage(params url.Values, page int) url.Values {
	out := url.Values{}
	for k, vs := range params {
		out[k] = append([]string(nil), vs...)
	}
	out.Set("page", strconv.Itoa(page))
	return out
}
