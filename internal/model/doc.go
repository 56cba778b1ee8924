// Package model defines the domain types shared across components.
//
// All entities are scoped to an owner (the trading character). Each entity
// has exactly one writing component: the ledger owns purchase lots, the
// undercut detector owns undercut statuses, the poller owns the open-order
// mirror, and so on. Monetary amounts are decimal.Decimal and are never
// rounded before presentation.
package model
