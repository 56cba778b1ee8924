package profit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// Tax ref types counted against a sale. Everything else in the journal
// is ignored here.
var taxRefTypes = map[string]bool{
	"transaction_tax":     true,
	"market_provider_tax": true,
}

// Store supplies the journal and transaction history a report reads.
type Store interface {
	// TaxEntries returns journal entries recorded against contextID
	// for the owner.
	TaxEntries(ctx context.Context, ownerID, contextID int64) ([]model.JournalEntry, error)

	// TransactionsThrough returns all of the owner's transactions
	// dated at or before through, in any order.
	TransactionsThrough(ctx context.Context, ownerID int64, through time.Time) ([]model.Transaction, error)
}

// Result is the profit breakdown for a single sale.
type Result struct {
	Gross decimal.Decimal
	COGS  decimal.Decimal
	Taxes decimal.Decimal
	Fees  decimal.Decimal
	Net   decimal.Decimal

	// Indeterminate marks a sale whose cost basis could not be fully
	// established. Net still subtracts the partial basis but must be
	// presented as a lower-confidence figure.
	Indeterminate bool
}

// PeriodResult aggregates sale profits over a reporting window.
type PeriodResult struct {
	Gross decimal.Decimal
	COGS  decimal.Decimal
	Taxes decimal.Decimal
	Fees  decimal.Decimal
	Net   decimal.Decimal
	Sales int

	// Indeterminate is set when any sale in the window lacked a full
	// cost basis.
	Indeterminate bool
}

// Reporter computes sale and period profit figures.
type Reporter struct {
	store   Store
	buyPct  decimal.Decimal
	sellPct decimal.Decimal
	logger  *slog.Logger
}

// NewReporter creates a Reporter. buyPct and sellPct are the broker
// fee fractions applied to the buy and sell side (0.015 is 1.5%).
func NewReporter(store Store, buyPct, sellPct float64, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		store:   store,
		buyPct:  decimal.NewFromFloat(buyPct),
		sellPct: decimal.NewFromFloat(sellPct),
		logger:  logger,
	}
}

// SaleProfit computes the breakdown for one sale given its cost basis.
// cogsComplete is false when the ledger could not cover the full
// quantity.
func (r *Reporter) SaleProfit(ctx context.Context, sale model.Transaction, cogs decimal.Decimal, cogsComplete bool) (Result, error) {
	if sale.IsBuy {
		return Result{}, fmt.Errorf("transaction %d is a buy", sale.TransactionID)
	}

	gross := sale.Value()

	taxes := decimal.Zero
	entries, err := r.store.TaxEntries(ctx, sale.OwnerID, sale.JournalRefID)
	if err != nil {
		return Result{}, fmt.Errorf("load tax entries: %w", err)
	}
	for _, e := range entries {
		if taxRefTypes[e.RefType] {
			taxes = taxes.Add(e.Amount.Abs())
		}
	}

	fees := r.estimateFees(cogs, gross)
	net := gross.Sub(cogs).Sub(taxes).Sub(fees)

	return Result{
		Gross:         gross,
		COGS:          cogs,
		Taxes:         taxes,
		Fees:          fees,
		Net:           net,
		Indeterminate: !cogsComplete,
	}, nil
}

// estimateFees approximates broker fees: the buy-side fee on the cost
// basis plus the sell-side fee on the sale value. The journal records
// brokers_fee entries per order, not per fill, so an exact per-sale
// attribution is not possible.
func (r *Reporter) estimateFees(cogs, gross decimal.Decimal) decimal.Decimal {
	return cogs.Mul(r.buyPct).Add(gross.Mul(r.sellPct))
}

// replayLot is an in-memory FIFO lot during period replay.
type replayLot struct {
	quantity int64
	unitCost decimal.Decimal
}

// Period replays the owner's full history through `to` and aggregates
// the profit of personal sales dated in [from, to]. The replay starts
// from nothing every time, so the report is a pure function of the
// stored history.
func (r *Reporter) Period(ctx context.Context, ownerID int64, from, to time.Time) (PeriodResult, error) {
	txs, err := r.store.TransactionsThrough(ctx, ownerID, to)
	if err != nil {
		return PeriodResult{}, fmt.Errorf("load transactions: %w", err)
	}

	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].TransactionID < txs[j].TransactionID
	})

	result := PeriodResult{
		Gross: decimal.Zero,
		COGS:  decimal.Zero,
		Taxes: decimal.Zero,
		Fees:  decimal.Zero,
		Net:   decimal.Zero,
	}

	lots := make(map[int64][]replayLot)
	for _, tx := range txs {
		if !tx.IsPersonal {
			continue
		}

		if tx.IsBuy {
			lots[tx.TypeID] = append(lots[tx.TypeID], replayLot{
				quantity: tx.Quantity,
				unitCost: tx.UnitPrice,
			})
			continue
		}

		cogs, complete := drain(lots, tx.TypeID, tx.Quantity)
		if tx.Date.Before(from) {
			continue
		}

		sale, err := r.SaleProfit(ctx, tx, cogs, complete)
		if err != nil {
			return PeriodResult{}, err
		}

		result.Gross = result.Gross.Add(sale.Gross)
		result.COGS = result.COGS.Add(sale.COGS)
		result.Taxes = result.Taxes.Add(sale.Taxes)
		result.Fees = result.Fees.Add(sale.Fees)
		result.Net = result.Net.Add(sale.Net)
		result.Sales++
		if sale.Indeterminate {
			result.Indeterminate = true
		}
	}

	return result, nil
}

// drain consumes quantity units FIFO from the in-memory lots for
// typeID, returning the cost of the drained units and whether the
// full quantity was covered.
func drain(lots map[int64][]replayLot, typeID, quantity int64) (decimal.Decimal, bool) {
	cogs := decimal.Zero
	remaining := quantity
	queue := lots[typeID]

	for len(queue) > 0 && remaining > 0 {
		lot := &queue[0]
		take := lot.quantity
		if take > remaining {
			take = remaining
		}
		cogs = cogs.Add(lot.unitCost.Mul(decimal.NewFromInt(take)))
		remaining -= take
		lot.quantity -= take
		if lot.quantity == 0 {
			queue = queue[1:]
		}
	}

	lots[typeID] = queue
	return cogs, remaining == 0
}
