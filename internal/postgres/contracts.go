package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mwerner/evetrack/internal/model"
)

// ContractStore persists the contract snapshot and the processed log.
type ContractStore struct {
	pool *pgxpool.Pool
}

// NewContractStore creates a ContractStore.
func NewContractStore(pool *pgxpool.Pool) *ContractStore {
	return &ContractStore{pool: pool}
}

// ReplaceContracts upserts the latest snapshot and removes rows for
// contracts no longer reported.
func (s *ContractStore) ReplaceContracts(ctx context.Context, ownerID int64, contracts []model.Contract) error {
	batch := &pgx.Batch{}
	liveIDs := make([]int64, 0, len(contracts))
	for _, c := range contracts {
		liveIDs = append(liveIDs, c.ContractID)

		var assignee *int64
		if c.AssigneeID != 0 {
			id := c.AssigneeID
			assignee = &id
		}
		batch.Queue(
			`INSERT INTO contracts (contract_id, owner_id, issuer_id, assignee_id,
				type, status, date_issued, date_expired, start_location_id,
				for_corporation, contract_data)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (contract_id, owner_id) DO UPDATE SET
				status = EXCLUDED.status,
				contract_data = EXCLUDED.contract_data`,
			c.ContractID, c.OwnerID, c.IssuerID, assignee,
			c.Type, c.Status, c.DateIssued, c.DateExpired, c.StartLocationID,
			c.ForCorporation, []byte(c.Raw),
		)
	}
	batch.Queue(
		`DELETE FROM contracts WHERE owner_id = $1 AND NOT (contract_id = ANY($2))`,
		ownerID, liveIDs,
	)

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(contracts)+1; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("replace contracts: %w", err)
		}
	}
	return nil
}

// FilterUnprocessed returns the contract IDs not yet in the processed
// log.
func (s *ContractStore) FilterUnprocessed(ctx context.Context, ownerID int64, contractIDs []int64) ([]int64, error) {
	if len(contractIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT contract_id FROM processed_contracts
		 WHERE owner_id = $1 AND contract_id = ANY($2)`,
		ownerID, contractIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select processed contracts: %w", err)
	}
	defer rows.Close()

	processed := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed contract: %w", err)
		}
		processed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unprocessed []int64
	for _, id := range contractIDs {
		if !processed[id] {
			unprocessed = append(unprocessed, id)
		}
	}
	return unprocessed, nil
}

// MarkProcessed records contractIDs in the processed log.
func (s *ContractStore) MarkProcessed(ctx context.Context, ownerID int64, contractIDs []int64) error {
	if len(contractIDs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range contractIDs {
		batch.Queue(
			`INSERT INTO processed_contracts (contract_id, owner_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			id, ownerID,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range contractIDs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("mark contract processed: %w", err)
		}
	}
	return nil
}
