// Package esi is the HTTP client for the EVE Swagger Interface.
//
// All GET traffic flows through the conditional cache: each endpoint
// builds a cache key and a loader, and the cache decides whether the
// network is touched at all. Paginated endpoints follow the X-Pages
// header, re-fetching page 1 unconditionally so a changed page count
// is never missed.
package esi
