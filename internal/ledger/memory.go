package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/mwerner/evetrack/internal/model"
)

// MemoryStore is a map-backed Store used in tests. Like the SQL
// implementation, transactions and lots dedupe on the
// (transaction_id, owner_id) key and land together.
type MemoryStore struct {
	mu        sync.Mutex
	nextLotID int64
	txs       map[[2]int64]model.Transaction // (transaction_id, owner_id)
	lots      map[int64]model.PurchaseLot
	lotted    map[[2]int64]bool // buys that already opened a lot
	pending   map[[2]int64]bool // sales awaiting processing
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextLotID: 1,
		txs:       make(map[[2]int64]model.Transaction),
		lots:      make(map[int64]model.PurchaseLot),
		lotted:    make(map[[2]int64]bool),
		pending:   make(map[[2]int64]bool),
	}
}

func (s *MemoryStore) InsertTransactions(_ context.Context, txs []model.Transaction, lots []model.PurchaseLot, salesProcessed bool) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []model.Transaction
	for _, tx := range txs {
		key := [2]int64{tx.TransactionID, tx.OwnerID}
		if _, exists := s.txs[key]; exists {
			continue
		}
		s.txs[key] = tx
		if !salesProcessed && !tx.IsBuy && tx.IsPersonal {
			s.pending[key] = true
		}
		inserted = append(inserted, tx)
	}

	for _, lot := range lots {
		key := [2]int64{lot.TransactionID, lot.OwnerID}
		if s.lotted[key] {
			continue
		}
		lot.LotID = s.nextLotID
		s.nextLotID++
		s.lots[lot.LotID] = lot
		s.lotted[key] = true
	}
	return inserted, nil
}

func (s *MemoryStore) UnprocessedSales(_ context.Context, ownerID int64) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sales []model.Transaction
	for key := range s.pending {
		tx := s.txs[key]
		if tx.OwnerID == ownerID {
			sales = append(sales, tx)
		}
	}
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].Date.Equal(sales[j].Date) {
			return sales[i].Date.Before(sales[j].Date)
		}
		return sales[i].TransactionID < sales[j].TransactionID
	})
	return sales, nil
}

func (s *MemoryStore) MarkSaleProcessed(_ context.Context, transactionID, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, [2]int64{transactionID, ownerID})
	return nil
}

func (s *MemoryStore) LotsForType(_ context.Context, ownerID, typeID int64) ([]model.PurchaseLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lots []model.PurchaseLot
	for _, lot := range s.lots {
		if lot.OwnerID == ownerID && lot.TypeID == typeID {
			lots = append(lots, lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].PurchasedAt.Equal(lots[j].PurchasedAt) {
			return lots[i].PurchasedAt.Before(lots[j].PurchasedAt)
		}
		return lots[i].LotID < lots[j].LotID
	})
	return lots, nil
}

func (s *MemoryStore) UpdateLotQuantity(_ context.Context, lotID int64, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if ok {
		lot.Quantity = quantity
		s.lots[lotID] = lot
	}
	return nil
}

func (s *MemoryStore) DeleteLot(_ context.Context, lotID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lots, lotID)
	return nil
}

// LotCount returns the number of open lots.
func (s *MemoryStore) LotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lots)
}
