// Package postgres implements the storage interfaces of the other
// packages over a pgx connection pool.
//
// Natural-key inserts use ON CONFLICT DO NOTHING so every ingestion
// path is idempotent; snapshot tables (open orders, undercut statuses,
// contracts) are upserted and pruned against the latest fetch.
package postgres
