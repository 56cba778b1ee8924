// Package events carries notification-worthy happenings from the
// poller to whatever delivers them.
//
// Producers append to a buffer that grows under burst; a dispatcher
// drains it on its own schedule. The poller never blocks on delivery.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event.
type Kind string

const (
	KindSaleProfit       Kind = "sale_profit"
	KindBecameUndercut   Kind = "became_undercut"
	KindOrderRecovered   Kind = "order_recovered"
	KindOrderSold        Kind = "order_sold"
	KindOrderCancelled   Kind = "order_cancelled"
	KindOrderExpired     Kind = "order_expired"
	KindBackfillComplete Kind = "backfill_complete"
	KindWalletLow        Kind = "wallet_low"
	KindNewContract      Kind = "new_contract"
)

// Event is one notification-worthy happening for an owner. Fields
// holds resolved display values (item names, prices) keyed by what
// they are; delivery formats them, the poller does not.
type Event struct {
	ID         uuid.UUID
	Kind       Kind
	OwnerID    int64
	OwnerName  string
	OccurredAt time.Time
	Fields     map[string]string
}

// New creates an event with a fresh ID.
func New(kind Kind, ownerID int64, ownerName string, fields map[string]string) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		OwnerID:    ownerID,
		OwnerName:  ownerName,
		OccurredAt: time.Now().UTC(),
		Fields:     fields,
	}
}
