package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Owner
// -----------------------------------------------------------------------------

// Owner is a tracked trading character. The owner id is the tenancy boundary
// for every other entity.
type Owner struct {
	ID           int64     // Character id (primary key)
	Name         string    // Display name
	RefreshToken string    // Long-lived SSO credential
	CreatedAt    time.Time // Onboarding time; gates undercut alerts for pre-existing competition

	// Notification settings.
	NotificationsEnabled bool
	WalletThreshold      decimal.Decimal // Low-balance alert threshold

	// Backfill progress (see internal/backfill).
	IsBackfilling    bool
	BackfillBeforeID *int64 // Cursor: fetch transactions strictly before this id
}

// BackfillPhase is the derived position of an owner in the two-phase
// historical sync.
type BackfillPhase int

const (
	// BackfillNotStarted means no sync has ever run for the owner.
	BackfillNotStarted BackfillPhase = iota
	// BackfillGradual means the background cursor walk is in progress.
	BackfillGradual
	// BackfillComplete means the full history has been ingested.
	BackfillComplete
)

func (p BackfillPhase) String() string {
	switch p {
	case BackfillNotStarted:
		return "not_started"
	case BackfillGradual:
		return "gradual"
	case BackfillComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Wallet
// -----------------------------------------------------------------------------

// Transaction is an immutable wallet transaction. Uniqueness is
// (TransactionID, OwnerID); re-insertion of an existing pair is a no-op.
type Transaction struct {
	TransactionID int64
	OwnerID       int64
	TypeID        int64 // Item type traded
	IsBuy         bool
	IsPersonal    bool
	Quantity      int64
	UnitPrice     decimal.Decimal
	ClientID      int64
	LocationID    int64
	JournalRefID  int64 // Links to the wallet journal entry for this transaction
	Date          time.Time
}

// Value returns Quantity * UnitPrice.
func (t Transaction) Value() decimal.Decimal {
	return t.UnitPrice.Mul(decimal.NewFromInt(t.Quantity))
}

// JournalEntry is an immutable wallet journal row. Uniqueness is
// (ID, OwnerID).
type JournalEntry struct {
	ID          int64
	OwnerID     int64
	Amount      decimal.Decimal // Negative for outgoing (taxes, fees)
	RefType     string          // e.g. "transaction_tax", "brokers_fee", "market_escrow"
	ContextID   int64
	Date        time.Time
	Description string
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// OpenOrder mirrors one of the owner's live market orders. The set is
// replaced wholesale on each successful poll; orders absent from the latest
// snapshot are deleted.
type OpenOrder struct {
	OrderID      int64
	OwnerID      int64
	TypeID       int64
	IsBuyOrder   bool
	Price        decimal.Decimal
	VolumeRemain int64
	VolumeTotal  int64
	LocationID   int64
	Issued       time.Time

	// Raw is the upstream order object as received, kept for fields not yet
	// modeled. The typed fields above are the only ones queried.
	Raw json.RawMessage
}

// HistoricalOrder is a closed order from the order history endpoint, used to
// classify disappeared open orders.
type HistoricalOrder struct {
	OrderID      int64
	OwnerID      int64
	TypeID       int64
	State        string // "cancelled", "expired"
	Price        decimal.Decimal
	VolumeRemain int64
}

// RegionOrder is a competitor order from a regional order-book snapshot.
type RegionOrder struct {
	OrderID      int64
	TypeID       int64
	IsBuyOrder   bool
	Price        decimal.Decimal
	VolumeRemain int64
	LocationID   int64
	Issued       time.Time
}

// UndercutStatus is the detector's last classification of one open order.
// Rows for orders no longer open are pruned each cycle.
type UndercutStatus struct {
	OrderID              int64
	OwnerID              int64
	IsUndercut           bool
	CompetitorPrice      *decimal.Decimal // nil when no competitor exists
	CompetitorLocationID int64
	CompetitorVolume     int64
}

// -----------------------------------------------------------------------------
// Ledger
// -----------------------------------------------------------------------------

// PurchaseLot is a FIFO-tracked batch of purchased inventory. Lots for an
// (owner, item) pair form a queue ordered by PurchasedAt ascending; sales
// consume from the head. (TransactionID, OwnerID) is unique, so re-ingesting
// the originating buy cannot open a second lot.
type PurchaseLot struct {
	LotID         int64 // Surrogate key assigned by the store
	TransactionID int64 // Originating buy transaction
	OwnerID       int64
	TypeID        int64
	Quantity      int64 // Remaining unconsumed quantity, always > 0 while stored
	UnitCost      decimal.Decimal
	PurchasedAt   time.Time
}

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

// Contract mirrors a character contract. Replaced by upsert each poll; rows
// absent from the latest snapshot are removed.
type Contract struct {
	ContractID      int64
	OwnerID         int64
	IssuerID        int64
	AssigneeID      int64
	Type            string
	Status          string
	DateIssued      time.Time
	DateExpired     time.Time
	StartLocationID int64
	ForCorporation  bool

	Raw json.RawMessage
}
