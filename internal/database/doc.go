// Package database manages the PostgreSQL connection pool and the schema
// the tracker persists to.
//
// All component tables use natural-key primary keys with insert-or-ignore
// or upsert semantics, so re-running any ingestion step converges instead
// of double-counting.
package database
