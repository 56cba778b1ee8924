package esi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// Wire types mirror the ESI JSON schemas. Each converts to the
// corresponding model type, stamping in the owner.

type walletTransaction struct {
	TransactionID int64           `json:"transaction_id"`
	TypeID        int64           `json:"type_id"`
	IsBuy         bool            `json:"is_buy"`
	IsPersonal    bool            `json:"is_personal"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ClientID      int64           `json:"client_id"`
	LocationID    int64           `json:"location_id"`
	JournalRefID  int64           `json:"journal_ref_id"`
	Date          time.Time       `json:"date"`
}

func (w walletTransaction) toModel(ownerID int64) model.Transaction {
	return model.Transaction{
		TransactionID: w.TransactionID,
		OwnerID:       ownerID,
		TypeID:        w.TypeID,
		IsBuy:         w.IsBuy,
		IsPersonal:    w.IsPersonal,
		Quantity:      w.Quantity,
		UnitPrice:     w.UnitPrice,
		ClientID:      w.ClientID,
		LocationID:    w.LocationID,
		JournalRefID:  w.JournalRefID,
		Date:          w.Date,
	}
}

type journalEntry struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	RefType     string          `json:"ref_type"`
	ContextID   int64           `json:"context_id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

func (j journalEntry) toModel(ownerID int64) model.JournalEntry {
	return model.JournalEntry{
		ID:          j.ID,
		OwnerID:     ownerID,
		Amount:      j.Amount,
		RefType:     j.RefType,
		ContextID:   j.ContextID,
		Date:        j.Date,
		Description: j.Description,
	}
}

type characterOrder struct {
	OrderID      int64           `json:"order_id"`
	TypeID       int64           `json:"type_id"`
	IsBuyOrder   bool            `json:"is_buy_order"`
	Price        decimal.Decimal `json:"price"`
	VolumeRemain int64           `json:"volume_remain"`
	VolumeTotal  int64           `json:"volume_total"`
	LocationID   int64           `json:"location_id"`
	Issued       time.Time       `json:"issued"`
	State        string          `json:"state"`
}

func (o characterOrder) toModel(ownerID int64, raw json.RawMessage) model.OpenOrder {
	return model.OpenOrder{
		OrderID:      o.OrderID,
		OwnerID:      ownerID,
		TypeID:       o.TypeID,
		IsBuyOrder:   o.IsBuyOrder,
		Price:        o.Price,
		VolumeRemain: o.VolumeRemain,
		VolumeTotal:  o.VolumeTotal,
		LocationID:   o.LocationID,
		Issued:       o.Issued,
		Raw:          raw,
	}
}

func (o characterOrder) toHistorical(ownerID int64) model.HistoricalOrder {
	return model.HistoricalOrder{
		OrderID:      o.OrderID,
		OwnerID:      ownerID,
		TypeID:       o.TypeID,
		State:        o.State,
		Price:        o.Price,
		VolumeRemain: o.VolumeRemain,
	}
}

type regionOrder struct {
	OrderID      int64           `json:"order_id"`
	TypeID       int64           `json:"type_id"`
	IsBuyOrder   bool            `json:"is_buy_order"`
	Price        decimal.Decimal `json:"price"`
	VolumeRemain int64           `json:"volume_remain"`
	LocationID   int64           `json:"location_id"`
	Issued       time.Time       `json:"issued"`
}

func (o regionOrder) toModel() model.RegionOrder {
	return model.RegionOrder{
		OrderID:      o.OrderID,
		TypeID:       o.TypeID,
		IsBuyOrder:   o.IsBuyOrder,
		Price:        o.Price,
		VolumeRemain: o.VolumeRemain,
		LocationID:   o.LocationID,
		Issued:       o.Issued,
	}
}

type contract struct {
	ContractID      int64     `json:"contract_id"`
	IssuerID        int64     `json:"issuer_id"`
	AssigneeID      int64     `json:"assignee_id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	DateIssued      time.Time `json:"date_issued"`
	DateExpired     time.Time `json:"date_expired"`
	StartLocationID int64     `json:"start_location_id"`
	ForCorporation  bool      `json:"for_corporation"`
}

func (c contract) toModel(ownerID int64, raw json.RawMessage) model.Contract {
	return model.Contract{
		ContractID:      c.ContractID,
		OwnerID:         ownerID,
		IssuerID:        c.IssuerID,
		AssigneeID:      c.AssigneeID,
		Type:            c.Type,
		Status:          c.Status,
		DateIssued:      c.DateIssued,
		DateExpired:     c.DateExpired,
		StartLocationID: c.StartLocationID,
		ForCorporation:  c.ForCorporation,
		Raw:             raw,
	}
}

// NameEntry is one resolved ID from the universe names endpoint.
type NameEntry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type stationInfo struct {
	SystemID int64 `json:"system_id"`
}

type structureInfo struct {
	Name          string `json:"name"`
	SolarSystemID int64  `json:"solar_system_id"`
}

type systemInfo struct {
	ConstellationID int64 `json:"constellation_id"`
}

type constellationInfo struct {
	RegionID int64 `json:"region_id"`
}
