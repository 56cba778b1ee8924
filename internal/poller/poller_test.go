package poller

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/events"
	"github.com/mwerner/evetrack/internal/model"
	"github.com/mwerner/evetrack/internal/profit"
	"github.com/mwerner/evetrack/internal/undercut"
)

type fakeAPI struct {
	txs       []model.Transaction
	journal   []model.JournalEntry
	balance   decimal.Decimal
	orders    []model.OpenOrder
	ordersErr error
	history   []model.HistoricalOrder
	contracts []model.Contract
}

func (f *fakeAPI) WalletTransactions(context.Context, *model.Owner, int64) ([]model.Transaction, error) {
	return f.txs, nil
}
func (f *fakeAPI) WalletJournal(context.Context, *model.Owner) ([]model.JournalEntry, error) {
	return f.journal, nil
}
func (f *fakeAPI) WalletBalance(context.Context, *model.Owner) (decimal.Decimal, error) {
	return f.balance, nil
}
func (f *fakeAPI) OpenOrders(context.Context, *model.Owner) ([]model.OpenOrder, error) {
	return f.orders, f.ordersErr
}
func (f *fakeAPI) OrderHistory(context.Context, *model.Owner) ([]model.HistoricalOrder, error) {
	return f.history, nil
}
func (f *fakeAPI) Contracts(context.Context, *model.Owner) ([]model.Contract, error) {
	return f.contracts, nil
}

type fakeLedger struct {
	seen       map[int64]bool
	pending    map[int64]model.Transaction
	consumed   []int64
	consumeErr error // returned once, then cleared
	incomplete bool  // report partial lot coverage
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		seen:    make(map[int64]bool),
		pending: make(map[int64]model.Transaction),
	}
}

func (f *fakeLedger) IngestTransactions(_ context.Context, txs []model.Transaction) ([]model.Transaction, error) {
	var inserted []model.Transaction
	for _, tx := range txs {
		if f.seen[tx.TransactionID] {
			continue
		}
		f.seen[tx.TransactionID] = true
		if !tx.IsBuy && tx.IsPersonal {
			f.pending[tx.TransactionID] = tx
		}
		inserted = append(inserted, tx)
	}
	return inserted, nil
}

func (f *fakeLedger) UnprocessedSales(context.Context, int64) ([]model.Transaction, error) {
	var sales []model.Transaction
	for _, tx := range f.pending {
		sales = append(sales, tx)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].TransactionID < sales[j].TransactionID })
	return sales, nil
}

func (f *fakeLedger) ConsumeForSale(_ context.Context, _, _, quantity int64) (decimal.Decimal, bool, error) {
	if f.consumeErr != nil {
		err := f.consumeErr
		f.consumeErr = nil
		return decimal.Zero, false, err
	}
	f.consumed = append(f.consumed, quantity)
	return decimal.NewFromInt(quantity * 10), !f.incomplete, nil
}

func (f *fakeLedger) MarkSaleProcessed(_ context.Context, transactionID, _ int64) error {
	delete(f.pending, transactionID)
	return nil
}

type fakeReporter struct{}

func (fakeReporter) SaleProfit(_ context.Context, sale model.Transaction, cogs decimal.Decimal, complete bool) (profit.Result, error) {
	gross := sale.Value()
	return profit.Result{
		Gross:         gross,
		COGS:          cogs,
		Net:           gross.Sub(cogs),
		Indeterminate: !complete,
	}, nil
}

type fakeDetector struct {
	statuses    []model.UndercutStatus
	transitions []undercut.Transition
}

func (f *fakeDetector) Evaluate(_ context.Context, _ *model.Owner, _ []model.OpenOrder,
	_ map[int64]model.OpenOrder, _ map[int64]model.UndercutStatus,
) ([]model.UndercutStatus, []undercut.Transition, error) {
	return f.statuses, f.transitions, nil
}

type fakeBackfiller struct {
	fastSyncs int
	steps     int
}

func (f *fakeBackfiller) StartFastSync(_ context.Context, owner *model.Owner) error {
	f.fastSyncs++
	cursor := int64(100)
	owner.BackfillBeforeID = &cursor
	return nil
}

func (f *fakeBackfiller) Step(_ context.Context, owner *model.Owner) error {
	f.steps++
	owner.IsBackfilling = false
	owner.BackfillBeforeID = nil
	return nil
}

type fakeNames struct{}

func (fakeNames) Resolve(_ context.Context, _ *model.Owner, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		out[id] = "name"
	}
	return out, nil
}

type fakeJournalStore struct{ inserted int }

func (f *fakeJournalStore) InsertEntries(_ context.Context, entries []model.JournalEntry) (int, error) {
	f.inserted += len(entries)
	return len(entries), nil
}

type fakeOrderStore struct {
	stored    map[int64]model.OpenOrder
	processed map[int64]bool
	replaced  bool
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		stored:    make(map[int64]model.OpenOrder),
		processed: make(map[int64]bool),
	}
}

func (f *fakeOrderStore) OpenOrders(context.Context, int64) (map[int64]model.OpenOrder, error) {
	return f.stored, nil
}

func (f *fakeOrderStore) ReplaceOpenOrders(_ context.Context, _ int64, orders []model.OpenOrder) error {
	f.replaced = true
	f.stored = make(map[int64]model.OpenOrder, len(orders))
	for _, o := range orders {
		f.stored[o.OrderID] = o
	}
	return nil
}

func (f *fakeOrderStore) FilterUnprocessed(_ context.Context, _ int64, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if !f.processed[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) MarkProcessed(_ context.Context, _ int64, ids []int64) error {
	for _, id := range ids {
		f.processed[id] = true
	}
	return nil
}

type fakeUndercutStore struct {
	statuses map[int64]model.UndercutStatus
}

func (f *fakeUndercutStore) Statuses(context.Context, int64) (map[int64]model.UndercutStatus, error) {
	return f.statuses, nil
}

func (f *fakeUndercutStore) ReplaceStatuses(_ context.Context, _ int64, statuses []model.UndercutStatus) error {
	f.statuses = make(map[int64]model.UndercutStatus, len(statuses))
	for _, s := range statuses {
		f.statuses[s.OrderID] = s
	}
	return nil
}

type fakeContractStore struct {
	processed map[int64]bool
}

func newFakeContractStore() *fakeContractStore {
	return &fakeContractStore{processed: make(map[int64]bool)}
}

func (f *fakeContractStore) ReplaceContracts(context.Context, int64, []model.Contract) error {
	return nil
}

func (f *fakeContractStore) FilterUnprocessed(_ context.Context, _ int64, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if !f.processed[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeContractStore) MarkProcessed(_ context.Context, _ int64, ids []int64) error {
	for _, id := range ids {
		f.processed[id] = true
	}
	return nil
}

type fixture struct {
	api        *fakeAPI
	ledger     *fakeLedger
	backfiller *fakeBackfiller
	journal    *fakeJournalStore
	orderStore *fakeOrderStore
	contracts  *fakeContractStore
	buffer     *events.Buffer
	poller     *Poller
}

func newFixture() *fixture {
	f := &fixture{
		api:        &fakeAPI{balance: decimal.NewFromInt(1_000_000_000)},
		ledger:     newFakeLedger(),
		backfiller: &fakeBackfiller{},
		journal:    &fakeJournalStore{},
		orderStore: newFakeOrderStore(),
		contracts:  newFakeContractStore(),
		buffer:     events.NewBuffer(64),
	}
	f.poller = New(Config{
		API:       f.api,
		Ledger:    f.ledger,
		Reporter:  fakeReporter{},
		Detector:  &fakeDetector{},
		Backfill:  f.backfiller,
		Names:     fakeNames{},
		Journal:   f.journal,
		Orders:    f.orderStore,
		Undercuts: &fakeUndercutStore{},
		Contracts: f.contracts,
		Buffer:    f.buffer,
	})
	return f
}

func owner() *model.Owner {
	return &model.Owner{
		ID:                   91,
		Name:                 "Tester",
		NotificationsEnabled: true,
		CreatedAt:            time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func drainKinds(b *events.Buffer) []events.Kind {
	var kinds []events.Kind
	for _, ev := range b.Drain(0) {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestPollOwner_SaleProducesProfitEvent(t *testing.T) {
	f := newFixture()
	f.api.txs = []model.Transaction{{
		TransactionID: 10,
		OwnerID:       91,
		TypeID:        34,
		IsBuy:         false,
		IsPersonal:    true,
		Quantity:      5,
		UnitPrice:     decimal.NewFromInt(100),
		Date:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}

	kinds := drainKinds(f.buffer)
	if len(kinds) != 1 || kinds[0] != events.KindSaleProfit {
		t.Errorf("events = %v, want one sale_profit", kinds)
	}
	if len(f.ledger.consumed) != 1 || f.ledger.consumed[0] != 5 {
		t.Errorf("consumed = %v", f.ledger.consumed)
	}
}

func TestPollOwner_SaleRetriedAfterConsumeFailure(t *testing.T) {
	f := newFixture()
	f.api.txs = []model.Transaction{{
		TransactionID: 10,
		OwnerID:       91,
		TypeID:        34,
		IsPersonal:    true,
		Quantity:      5,
		UnitPrice:     decimal.NewFromInt(100),
		Date:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	f.ledger.consumeErr = errors.New("db down")

	if err := f.poller.PollOwner(context.Background(), owner()); err == nil {
		t.Fatal("expected error from failed consumption")
	}
	if kinds := drainKinds(f.buffer); len(kinds) != 0 {
		t.Errorf("events = %v, failed attempt must not announce", kinds)
	}

	// Next cycle sees the same API window; the sale is still queued.
	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner retry: %v", err)
	}
	kinds := drainKinds(f.buffer)
	if len(kinds) != 1 || kinds[0] != events.KindSaleProfit {
		t.Errorf("events = %v, want one sale_profit after retry", kinds)
	}
	if len(f.ledger.consumed) != 1 || f.ledger.consumed[0] != 5 {
		t.Errorf("consumed = %v, want [5]", f.ledger.consumed)
	}

	// A third cycle must not announce or consume it again.
	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}
	if kinds := drainKinds(f.buffer); len(kinds) != 0 {
		t.Errorf("events = %v, processed sale re-announced", kinds)
	}
	if len(f.ledger.consumed) != 1 {
		t.Errorf("consumed = %v, processed sale re-consumed", f.ledger.consumed)
	}
}

func TestPollOwner_IndeterminateBasisShowsNoNet(t *testing.T) {
	f := newFixture()
	f.ledger.incomplete = true
	f.api.txs = []model.Transaction{{
		TransactionID: 10,
		OwnerID:       91,
		TypeID:        34,
		IsPersonal:    true,
		Quantity:      5,
		UnitPrice:     decimal.NewFromInt(100),
		Date:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}

	evs := f.buffer.Drain(0)
	if len(evs) != 1 || evs[0].Kind != events.KindSaleProfit {
		t.Fatalf("events = %v, want one sale_profit", evs)
	}
	if got := evs[0].Fields["net"]; got != "N/A" {
		t.Errorf("net = %q, want N/A when the basis is incomplete", got)
	}
	if got := evs[0].Fields["cost_basis"]; got != "incomplete" {
		t.Errorf("cost_basis = %q, want incomplete", got)
	}
	if got := evs[0].Fields["gross"]; got != "500.00" {
		t.Errorf("gross = %q, want 500.00 (known regardless of basis)", got)
	}
}

func TestPollOwner_NotificationsOffSuppressesEvents(t *testing.T) {
	f := newFixture()
	f.api.txs = []model.Transaction{{
		TransactionID: 10, OwnerID: 91, TypeID: 34,
		IsPersonal: true, Quantity: 5,
		UnitPrice: decimal.NewFromInt(100),
		Date:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	o := owner()
	o.NotificationsEnabled = false
	if err := f.poller.PollOwner(context.Background(), o); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}
	if kinds := drainKinds(f.buffer); len(kinds) != 0 {
		t.Errorf("events = %v, want none", kinds)
	}
}

func TestPollOwner_DisappearedOrderClassified(t *testing.T) {
	cases := []struct {
		name    string
		history []model.HistoricalOrder
		want    events.Kind
	}{
		{"cancelled upstream", []model.HistoricalOrder{{OrderID: 1, State: "cancelled"}}, events.KindOrderCancelled},
		{"expired upstream", []model.HistoricalOrder{{OrderID: 1, State: "expired"}}, events.KindOrderExpired},
		{"vanished entirely", nil, events.KindOrderSold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.orderStore.stored = map[int64]model.OpenOrder{1: {
				OrderID: 1, OwnerID: 91, TypeID: 34,
				Price: decimal.NewFromInt(100), VolumeRemain: 3, VolumeTotal: 10,
			}}
			f.api.orders = nil
			f.api.history = tc.history

			if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
				t.Fatalf("PollOwner: %v", err)
			}
			kinds := drainKinds(f.buffer)
			if len(kinds) != 1 || kinds[0] != tc.want {
				t.Errorf("events = %v, want [%s]", kinds, tc.want)
			}
			if !f.orderStore.processed[1] {
				t.Error("disappeared order not marked processed")
			}
		})
	}
}

func TestPollOwner_ProcessedOrdersNotReannounced(t *testing.T) {
	f := newFixture()
	f.orderStore.stored = map[int64]model.OpenOrder{1: {OrderID: 1, OwnerID: 91, TypeID: 34, Price: decimal.NewFromInt(100)}}
	f.orderStore.processed[1] = true

	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}
	if kinds := drainKinds(f.buffer); len(kinds) != 0 {
		t.Errorf("events = %v, want none for already processed order", kinds)
	}
}

func TestPollOwner_OrderFetchFailureAborts(t *testing.T) {
	f := newFixture()
	f.orderStore.stored = map[int64]model.OpenOrder{1: {OrderID: 1, OwnerID: 91}}
	f.api.ordersErr = errors.New("esi down")

	if err := f.poller.PollOwner(context.Background(), owner()); err == nil {
		t.Fatal("expected error")
	}
	if f.orderStore.replaced {
		t.Error("snapshot replaced despite failed fetch")
	}
	if kinds := drainKinds(f.buffer); len(kinds) != 0 {
		t.Errorf("events = %v, failed fetch must not read as disappearance", kinds)
	}
}

func TestPollOwner_BackfillPhases(t *testing.T) {
	t.Run("not started triggers fast sync", func(t *testing.T) {
		f := newFixture()
		o := owner()
		o.IsBackfilling = true

		if err := f.poller.PollOwner(context.Background(), o); err != nil {
			t.Fatalf("PollOwner: %v", err)
		}
		if f.backfiller.fastSyncs != 1 || f.backfiller.steps != 0 {
			t.Errorf("fastSyncs = %d steps = %d", f.backfiller.fastSyncs, f.backfiller.steps)
		}
	})

	t.Run("gradual steps and completion event", func(t *testing.T) {
		f := newFixture()
		o := owner()
		o.IsBackfilling = true
		cursor := int64(100)
		o.BackfillBeforeID = &cursor

		if err := f.poller.PollOwner(context.Background(), o); err != nil {
			t.Fatalf("PollOwner: %v", err)
		}
		if f.backfiller.steps != 1 {
			t.Errorf("steps = %d", f.backfiller.steps)
		}
		kinds := drainKinds(f.buffer)
		if len(kinds) != 1 || kinds[0] != events.KindBackfillComplete {
			t.Errorf("events = %v, want backfill_complete", kinds)
		}
	})

	t.Run("complete owners skip backfill", func(t *testing.T) {
		f := newFixture()
		if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
			t.Fatalf("PollOwner: %v", err)
		}
		if f.backfiller.fastSyncs != 0 || f.backfiller.steps != 0 {
			t.Error("completed owner still backfilled")
		}
	})
}

func TestPollOwner_WalletThreshold(t *testing.T) {
	f := newFixture()
	f.api.balance = decimal.NewFromInt(500)

	o := owner()
	o.WalletThreshold = decimal.NewFromInt(1000)

	if err := f.poller.PollOwner(context.Background(), o); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}
	kinds := drainKinds(f.buffer)
	if len(kinds) != 1 || kinds[0] != events.KindWalletLow {
		t.Errorf("events = %v, want wallet_low", kinds)
	}
}

func TestPollOwner_NewContractAnnouncedOnce(t *testing.T) {
	f := newFixture()
	f.api.contracts = []model.Contract{{
		ContractID: 7, OwnerID: 91, IssuerID: 1, Type: "item_exchange", Status: "outstanding",
	}}

	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}
	kinds := drainKinds(f.buffer)
	if len(kinds) != 1 || kinds[0] != events.KindNewContract {
		t.Errorf("events = %v, want new_contract", kinds)
	}

	// Second cycle: same contract, no event.
	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}
	if kinds := drainKinds(f.buffer); len(kinds) != 0 {
		t.Errorf("events = %v, want none on repeat", kinds)
	}
}

func TestPollOwner_JournalIngested(t *testing.T) {
	f := newFixture()
	f.api.journal = []model.JournalEntry{
		{ID: 1, OwnerID: 91, RefType: "transaction_tax", Amount: decimal.NewFromInt(-10)},
		{ID: 2, OwnerID: 91, RefType: "brokers_fee", Amount: decimal.NewFromInt(-3)},
	}

	if err := f.poller.PollOwner(context.Background(), owner()); err != nil {
		t.Fatalf("PollOwner: %v", err)
	}
	if f.journal.inserted != 2 {
		t.Errorf("journal inserted = %d", f.journal.inserted)
	}
}
