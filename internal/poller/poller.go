// Package poller drives the per-owner polling cycle: backfill, wallet
// ingestion, profit, order tracking, undercut detection, contracts.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/mwerner/evetrack/internal/backfill"
	"github.com/mwerner/evetrack/internal/events"
	"github.com/mwerner/evetrack/internal/metrics"
	"github.com/mwerner/evetrack/internal/model"
	"github.com/mwerner/evetrack/internal/profit"
	"github.com/mwerner/evetrack/internal/roster"
	"github.com/mwerner/evetrack/internal/undercut"
)

// MarketAPI is the slice of the ESI client the poller calls.
type MarketAPI interface {
	WalletTransactions(ctx context.Context, owner *model.Owner, fromID int64) ([]model.Transaction, error)
	WalletJournal(ctx context.Context, owner *model.Owner) ([]model.JournalEntry, error)
	WalletBalance(ctx context.Context, owner *model.Owner) (decimal.Decimal, error)
	OpenOrders(ctx context.Context, owner *model.Owner) ([]model.OpenOrder, error)
	OrderHistory(ctx context.Context, owner *model.Owner) ([]model.HistoricalOrder, error)
	Contracts(ctx context.Context, owner *model.Owner) ([]model.Contract, error)
}

// Ledger ingests transactions, queues sales for profit reporting, and
// answers cost-basis queries.
type Ledger interface {
	IngestTransactions(ctx context.Context, txs []model.Transaction) ([]model.Transaction, error)
	UnprocessedSales(ctx context.Context, ownerID int64) ([]model.Transaction, error)
	ConsumeForSale(ctx context.Context, ownerID, typeID, quantity int64) (decimal.Decimal, bool, error)
	MarkSaleProcessed(ctx context.Context, transactionID, ownerID int64) error
}

// Reporter computes per-sale profit.
type Reporter interface {
	SaleProfit(ctx context.Context, sale model.Transaction, cogs decimal.Decimal, cogsComplete bool) (profit.Result, error)
}

// Detector evaluates undercut status.
type Detector interface {
	Evaluate(ctx context.Context, owner *model.Owner, orders []model.OpenOrder,
		prevOrders map[int64]model.OpenOrder, prevStatuses map[int64]model.UndercutStatus,
	) ([]model.UndercutStatus, []undercut.Transition, error)
}

// Backfiller runs the two-phase history sync.
type Backfiller interface {
	StartFastSync(ctx context.Context, owner *model.Owner) error
	Step(ctx context.Context, owner *model.Owner) error
}

// NameResolver turns IDs into display names for event fields.
type NameResolver interface {
	Resolve(ctx context.Context, owner *model.Owner, ids []int64) (map[int64]string, error)
}

// JournalStore ingests wallet journal entries.
type JournalStore interface {
	InsertEntries(ctx context.Context, entries []model.JournalEntry) (int, error)
}

// OrderStore persists open-order snapshots and the processed log.
type OrderStore interface {
	OpenOrders(ctx context.Context, ownerID int64) (map[int64]model.OpenOrder, error)
	ReplaceOpenOrders(ctx context.Context, ownerID int64, orders []model.OpenOrder) error
	FilterUnprocessed(ctx context.Context, ownerID int64, orderIDs []int64) ([]int64, error)
	MarkProcessed(ctx context.Context, ownerID int64, orderIDs []int64) error
}

// UndercutStore persists detector statuses.
type UndercutStore interface {
	Statuses(ctx context.Context, ownerID int64) (map[int64]model.UndercutStatus, error)
	ReplaceStatuses(ctx context.Context, ownerID int64, statuses []model.UndercutStatus) error
}

// ContractStore persists contract snapshots and the processed log.
type ContractStore interface {
	ReplaceContracts(ctx context.Context, ownerID int64, contracts []model.Contract) error
	FilterUnprocessed(ctx context.Context, ownerID int64, contractIDs []int64) ([]int64, error)
	MarkProcessed(ctx context.Context, ownerID int64, contractIDs []int64) error
}

// Poller polls all owners on an interval.
type Poller struct {
	api       MarketAPI
	owners    roster.Repository
	ledger    Ledger
	reporter  Reporter
	detector  Detector
	backfill  Backfiller
	names     NameResolver
	journal   JournalStore
	orders    OrderStore
	undercuts UndercutStore
	contracts ContractStore
	buffer    *events.Buffer
	logger    *slog.Logger

	interval      time.Duration
	maxConcurrent int64
	maxRetries    int
	retryBackoff  time.Duration
	stepDelay     time.Duration
}

// Config collects the poller's dependencies.
type Config struct {
	API       MarketAPI
	Owners    roster.Repository
	Ledger    Ledger
	Reporter  Reporter
	Detector  Detector
	Backfill  Backfiller
	Names     NameResolver
	Journal   JournalStore
	Orders    OrderStore
	Undercuts UndercutStore
	Contracts ContractStore
	Buffer    *events.Buffer
	Logger    *slog.Logger

	Interval      time.Duration
	MaxConcurrent int

	// MaxRetries and RetryBackoff govern re-running a failed owner
	// cycle within one tick.
	MaxRetries   int
	RetryBackoff time.Duration

	// BackfillStepDelay paces consecutive history pages during the
	// gradual walk.
	BackfillStepDelay time.Duration
}

// New creates a Poller.
func New(cfg Config) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Poller{
		api:           cfg.API,
		owners:        cfg.Owners,
		ledger:        cfg.Ledger,
		reporter:      cfg.Reporter,
		detector:      cfg.Detector,
		backfill:      cfg.Backfill,
		names:         cfg.Names,
		journal:       cfg.Journal,
		orders:        cfg.Orders,
		undercuts:     cfg.Undercuts,
		contracts:     cfg.Contracts,
		buffer:        cfg.Buffer,
		logger:        logger,
		interval:      interval,
		maxConcurrent: maxConcurrent,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
		stepDelay:     cfg.BackfillStepDelay,
	}
}

// Run polls until ctx is cancelled. The first cycle starts
// immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

// pollAll runs one cycle for every owner, bounded by maxConcurrent.
// One owner failing never blocks the others.
func (p *Poller) pollAll(ctx context.Context) {
	owners, err := p.owners.Owners(ctx)
	if err != nil {
		p.logger.Error("load owners", "error", err)
		return
	}
	metrics.TrackedOwners.Set(float64(len(owners)))

	sem := semaphore.NewWeighted(p.maxConcurrent)
	for i := range owners {
		owner := owners[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer sem.Release(1)
			if err := p.pollWithRetry(ctx, &owner); err != nil {
				metrics.PollCycles.WithLabelValues("error").Inc()
				p.logger.Error("poll cycle failed",
					"owner_id", owner.ID,
					"owner", owner.Name,
					"error", err)
				return
			}
			metrics.PollCycles.WithLabelValues("ok").Inc()
		}()
	}

	// Wait for the cycle to drain before the next tick.
	if err := sem.Acquire(ctx, p.maxConcurrent); err != nil {
		return
	}
	sem.Release(p.maxConcurrent)
}

// pollWithRetry re-runs a failed cycle a few times before giving up
// until the next tick. Every step is idempotent, so a rerun can only
// fill in what the failed attempt missed.
func (p *Poller) pollWithRetry(ctx context.Context, owner *model.Owner) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			p.logger.Warn("retrying poll cycle",
				"owner_id", owner.ID,
				"attempt", attempt+1,
				"error", lastErr)
		}
		lastErr = p.PollOwner(ctx, owner)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// PollOwner runs one full cycle for a single owner.
func (p *Poller) PollOwner(ctx context.Context, owner *model.Owner) error {
	if err := p.syncBackfill(ctx, owner); err != nil {
		return err
	}
	if err := p.syncJournal(ctx, owner); err != nil {
		return err
	}
	if err := p.syncTransactions(ctx, owner); err != nil {
		return err
	}
	if err := p.checkWallet(ctx, owner); err != nil {
		return err
	}
	if err := p.syncOrders(ctx, owner); err != nil {
		return err
	}
	if err := p.syncContracts(ctx, owner); err != nil {
		return err
	}
	return nil
}

// syncBackfill advances the historical sync by at most one step, then
// lets the rest of the cycle continue with whatever history exists.
func (p *Poller) syncBackfill(ctx context.Context, owner *model.Owner) error {
	switch backfill.Phase(owner) {
	case model.BackfillNotStarted:
		if err := p.backfill.StartFastSync(ctx, owner); err != nil {
			return fmt.Errorf("fast sync: %w", err)
		}
	case model.BackfillGradual:
		// Walk as far back as the cycle allows, pacing each page.
		for backfill.Phase(owner) == model.BackfillGradual {
			if err := p.backfill.Step(ctx, owner); err != nil {
				return fmt.Errorf("backfill step: %w", err)
			}
			metrics.BackfillSteps.Inc()
			if backfill.Phase(owner) != model.BackfillGradual {
				break
			}
			select {
			case <-time.After(p.stepDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if backfill.Phase(owner) == model.BackfillComplete {
			p.publish(owner, events.KindBackfillComplete, map[string]string{})
		}
	}
	return nil
}

func (p *Poller) syncJournal(ctx context.Context, owner *model.Owner) error {
	entries, err := p.api.WalletJournal(ctx, owner)
	if err != nil {
		return fmt.Errorf("fetch journal: %w", err)
	}
	newCount, err := p.journal.InsertEntries(ctx, entries)
	if err != nil {
		return fmt.Errorf("ingest journal: %w", err)
	}
	metrics.JournalEntriesIngested.Add(float64(newCount))
	return nil
}

// syncTransactions ingests new wallet transactions and reports profit
// for every personal sale still awaiting it, oldest first so FIFO
// consumption matches the order the sales actually happened. A sale is
// marked processed only after its report went out, so a cycle that
// dies mid-sale picks up exactly where it stopped.
func (p *Poller) syncTransactions(ctx context.Context, owner *model.Owner) error {
	txs, err := p.api.WalletTransactions(ctx, owner, 0)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}

	inserted, err := p.ledger.IngestTransactions(ctx, txs)
	if err != nil {
		return fmt.Errorf("ingest transactions: %w", err)
	}
	metrics.TransactionsIngested.Add(float64(len(inserted)))

	sales, err := p.ledger.UnprocessedSales(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("load unprocessed sales: %w", err)
	}

	for _, sale := range sales {
		cogs, complete, err := p.ledger.ConsumeForSale(ctx, sale.OwnerID, sale.TypeID, sale.Quantity)
		if err != nil {
			return fmt.Errorf("consume lots for sale %d: %w", sale.TransactionID, err)
		}
		result, err := p.reporter.SaleProfit(ctx, sale, cogs, complete)
		if err != nil {
			return fmt.Errorf("profit for sale %d: %w", sale.TransactionID, err)
		}

		names := p.resolveNames(ctx, owner, []int64{sale.TypeID, sale.LocationID})
		fields := map[string]string{
			"item":     names[sale.TypeID],
			"location": names[sale.LocationID],
			"quantity": fmt.Sprintf("%d", sale.Quantity),
			"gross":    result.Gross.StringFixed(2),
			"net":      result.Net.StringFixed(2),
		}
		if result.Indeterminate {
			// An incomplete basis means the net figure would be a
			// guess; never show one.
			fields["net"] = "N/A"
			fields["cost_basis"] = "incomplete"
		}
		p.publish(owner, events.KindSaleProfit, fields)

		if err := p.ledger.MarkSaleProcessed(ctx, sale.TransactionID, sale.OwnerID); err != nil {
			return fmt.Errorf("mark sale %d processed: %w", sale.TransactionID, err)
		}
	}
	return nil
}

func (p *Poller) checkWallet(ctx context.Context, owner *model.Owner) error {
	if owner.WalletThreshold.IsZero() {
		return nil
	}
	balance, err := p.api.WalletBalance(ctx, owner)
	if err != nil {
		return fmt.Errorf("fetch wallet balance: %w", err)
	}
	if balance.LessThan(owner.WalletThreshold) {
		p.publish(owner, events.KindWalletLow, map[string]string{
			"balance":   balance.StringFixed(2),
			"threshold": owner.WalletThreshold.StringFixed(2),
		})
	}
	return nil
}

// syncOrders diffs the latest open-order snapshot against the stored
// one, classifies disappeared orders, and runs the undercut detector.
// If the fetch fails nothing is diffed: a missing snapshot must never
// read as "all orders disappeared".
func (p *Poller) syncOrders(ctx context.Context, owner *model.Owner) error {
	prevOrders, err := p.orders.OpenOrders(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("load stored orders: %w", err)
	}

	orders, err := p.api.OpenOrders(ctx, owner)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}

	if err := p.classifyDisappeared(ctx, owner, prevOrders, orders); err != nil {
		return err
	}

	if err := p.orders.ReplaceOpenOrders(ctx, owner.ID, orders); err != nil {
		return fmt.Errorf("store open orders: %w", err)
	}

	prevStatuses, err := p.undercuts.Statuses(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("load undercut statuses: %w", err)
	}
	statuses, transitions, err := p.detector.Evaluate(ctx, owner, orders, prevOrders, prevStatuses)
	if err != nil {
		return fmt.Errorf("evaluate undercuts: %w", err)
	}
	if err := p.undercuts.ReplaceStatuses(ctx, owner.ID, statuses); err != nil {
		return fmt.Errorf("store undercut statuses: %w", err)
	}

	for _, t := range transitions {
		metrics.UndercutTransitions.WithLabelValues(t.Kind.String()).Inc()

		names := p.resolveNames(ctx, owner, []int64{t.Order.TypeID, t.Order.LocationID})
		fields := map[string]string{
			"item":     names[t.Order.TypeID],
			"location": names[t.Order.LocationID],
			"price":    t.Order.Price.StringFixed(2),
		}
		kind := events.KindOrderRecovered
		if t.Kind == undercut.Became {
			kind = events.KindBecameUndercut
			if t.Status.CompetitorPrice != nil {
				fields["competitor_price"] = t.Status.CompetitorPrice.StringFixed(2)
			}
		}
		p.publish(owner, kind, fields)
	}
	return nil
}

// classifyDisappeared explains orders present in the previous snapshot
// but absent from the current one, using the order history endpoint.
// An order cancelled or expired upstream says so; anything else that
// vanished with volume left is treated as fully sold.
func (p *Poller) classifyDisappeared(ctx context.Context, owner *model.Owner, prevOrders map[int64]model.OpenOrder, orders []model.OpenOrder) error {
	current := make(map[int64]bool, len(orders))
	for _, o := range orders {
		current[o.OrderID] = true
	}

	var disappeared []int64
	for id := range prevOrders {
		if !current[id] {
			disappeared = append(disappeared, id)
		}
	}
	if len(disappeared) == 0 {
		return nil
	}

	unprocessed, err := p.orders.FilterUnprocessed(ctx, owner.ID, disappeared)
	if err != nil {
		return fmt.Errorf("filter processed orders: %w", err)
	}
	if len(unprocessed) == 0 {
		return nil
	}

	history, err := p.api.OrderHistory(ctx, owner)
	if err != nil {
		return fmt.Errorf("fetch order history: %w", err)
	}
	histByID := make(map[int64]model.HistoricalOrder, len(history))
	for _, h := range history {
		histByID[h.OrderID] = h
	}

	for _, id := range unprocessed {
		prev := prevOrders[id]
		kind := events.KindOrderSold
		if h, ok := histByID[id]; ok {
			switch h.State {
			case "cancelled":
				kind = events.KindOrderCancelled
			case "expired":
				kind = events.KindOrderExpired
			}
		}

		names := p.resolveNames(ctx, owner, []int64{prev.TypeID, prev.LocationID})
		p.publish(owner, kind, map[string]string{
			"item":     names[prev.TypeID],
			"location": names[prev.LocationID],
			"price":    prev.Price.StringFixed(2),
			"volume":   fmt.Sprintf("%d/%d", prev.VolumeRemain, prev.VolumeTotal),
		})
	}

	if err := p.orders.MarkProcessed(ctx, owner.ID, unprocessed); err != nil {
		return fmt.Errorf("mark orders processed: %w", err)
	}
	return nil
}

func (p *Poller) syncContracts(ctx context.Context, owner *model.Owner) error {
	contracts, err := p.api.Contracts(ctx, owner)
	if err != nil {
		return fmt.Errorf("fetch contracts: %w", err)
	}

	ids := make([]int64, 0, len(contracts))
	byID := make(map[int64]model.Contract, len(contracts))
	for _, c := range contracts {
		ids = append(ids, c.ContractID)
		byID[c.ContractID] = c
	}

	unprocessed, err := p.contracts.FilterUnprocessed(ctx, owner.ID, ids)
	if err != nil {
		return fmt.Errorf("filter processed contracts: %w", err)
	}

	for _, id := range unprocessed {
		c := byID[id]
		names := p.resolveNames(ctx, owner, []int64{c.IssuerID})
		p.publish(owner, events.KindNewContract, map[string]string{
			"contract_type": c.Type,
			"status":        c.Status,
			"issuer":        names[c.IssuerID],
		})
	}

	if err := p.contracts.ReplaceContracts(ctx, owner.ID, contracts); err != nil {
		return fmt.Errorf("store contracts: %w", err)
	}
	if err := p.contracts.MarkProcessed(ctx, owner.ID, unprocessed); err != nil {
		return fmt.Errorf("mark contracts processed: %w", err)
	}
	return nil
}

// publish emits an event unless the owner has notifications off.
func (p *Poller) publish(owner *model.Owner, kind events.Kind, fields map[string]string) {
	if !owner.NotificationsEnabled {
		return
	}
	metrics.EventsPublished.WithLabelValues(string(kind)).Inc()
	p.buffer.Publish(events.New(kind, owner.ID, owner.Name, fields))
}

// resolveNames is best-effort: an event with a raw ID in it beats a
// failed cycle.
func (p *Poller) resolveNames(ctx context.Context, owner *model.Owner, ids []int64) map[int64]string {
	names, err := p.names.Resolve(ctx, owner, ids)
	if err != nil {
		p.logger.Warn("name resolution failed", "error", err)
		names = make(map[int64]string, len(ids))
	}
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			names[id] = fmt.Sprintf("Unknown (%d)", id)
		}
	}
	return names
}
