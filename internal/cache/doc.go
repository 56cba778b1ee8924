// Package cache implements conditional HTTP response caching keyed on
// endpoint, owner, and request parameters.
//
// Entries carry the server's ETag and expiry. A fresh entry is served
// without any network traffic; a stale entry is revalidated with
// If-None-Match, and a 304 renews the entry without re-downloading the
// body. When revalidation fails outright the stale payload is served
// rather than surfacing a transient upstream error.
package cache
