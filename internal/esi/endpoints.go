package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// WalletTransactions returns the owner's market transactions. fromID,
// when non-zero, asks for transactions older than that transaction ID;
// the backfill walk pages history with it.
func (c *Client) WalletTransactions(ctx context.Context, owner *model.Owner, fromID int64) ([]model.Transaction, error) {
	params := url.Values{}
	if fromID > 0 {
		params.Set("from_id", strconv.FormatInt(fromID, 10))
	}

	req := &request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v1/characters/%d/wallet/transactions/", owner.ID),
		params: params,
		owner:  owner,
	}
	payload, _, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	var wire []walletTransaction
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}

	txs := make([]model.Transaction, 0, len(wire))
	for _, w := range wire {
		txs = append(txs, w.toModel(owner.ID))
	}
	return txs, nil
}

// WalletJournal returns every page of the owner's wallet journal.
func (c *Client) WalletJournal(ctx context.Context, owner *model.Owner) ([]model.JournalEntry, error) {
	path := fmt.Sprintf("/v6/characters/%d/wallet/journal/", owner.ID)
	wire, err := fetchPaged[journalEntry](ctx, c, path, nil, owner)
	if err != nil {
		return nil, err
	}

	entries := make([]model.JournalEntry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, w.toModel(owner.ID))
	}
	return entries, nil
}

// WalletBalance returns the owner's current ISK balance.
func (c *Client) WalletBalance(ctx context.Context, owner *model.Owner) (decimal.Decimal, error) {
	req := &request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v1/characters/%d/wallet/", owner.ID),
		owner:  owner,
	}
	payload, _, err := c.fetch(ctx, req)
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	if err := json.Unmarshal(payload, &balance); err != nil {
		return decimal.Zero, fmt.Errorf("decode wallet balance: %w", err)
	}
	return balance, nil
}

// OpenOrders returns the owner's open market orders. The raw JSON for
// each order is preserved alongside the decoded fields. The fetch is
// always revalidated: a served-fresh stale list would make order
// disappearance detection misfire.
func (c *Client) OpenOrders(ctx context.Context, owner *model.Owner) ([]model.OpenOrder, error) {
	req := &request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v2/characters/%d/orders/", owner.ID),
		owner:  owner,
		force:  true,
	}
	payload, _, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]model.OpenOrder, 0, len(raws))
	for _, raw := range raws {
		var w characterOrder
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		orders = append(orders, w.toModel(owner.ID, raw))
	}
	return orders, nil
}

// OrderHistory returns the owner's closed and expired orders, newest
// first.
func (c *Client) OrderHistory(ctx context.Context, owner *model.Owner) ([]model.HistoricalOrder, error) {
	path := fmt.Sprintf("/v1/characters/%d/orders/history/", owner.ID)
	wire, err := fetchPaged[characterOrder](ctx, c, path, nil, owner)
	if err != nil {
		return nil, err
	}

	orders := make([]model.HistoricalOrder, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, w.toHistorical(owner.ID))
	}
	return orders, nil
}

// RegionOrders returns all live orders for typeID in regionID. This is
// a public endpoint shared across owners.
func (c *Client) RegionOrders(ctx context.Context, regionID, typeID int64) ([]model.RegionOrder, error) {
	params := url.Values{}
	params.Set("order_type", "all")
	params.Set("type_id", strconv.FormatInt(typeID, 10))

	path := fmt.Sprintf("/v1/markets/%d/orders/", regionID)
	wire, err := fetchPaged[regionOrder](ctx, c, path, params, nil)
	if err != nil {
		return nil, err
	}

	orders := make([]model.RegionOrder, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, w.toModel())
	}
	return orders, nil
}

// Contracts returns every page of the owner's contracts with raw JSON
// preserved.
func (c *Client) Contracts(ctx context.Context, owner *model.Owner) ([]model.Contract, error) {
	path := fmt.Sprintf("/v1/characters/%d/contracts/", owner.ID)
	raws, err := fetchPaged[json.RawMessage](ctx, c, path, nil, owner)
	if err != nil {
		return nil, err
	}

	contracts := make([]model.Contract, 0, len(raws))
	for _, raw := range raws {
		var w contract
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode contract: %w", err)
		}
		contracts = append(contracts, w.toModel(owner.ID, raw))
	}
	return contracts, nil
}

// ResolveNames resolves up to 1000 IDs to names in one call.
func (c *Client) ResolveNames(ctx context.Context, ids []int64) ([]NameEntry, error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode ids: %w", err)
	}

	req := &request{
		method: http.MethodPost,
		path:   "/v3/universe/names/",
		body:   string(body),
	}
	payload, _, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	var entries []NameEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("decode names: %w", err)
	}
	return entries, nil
}

// Structure returns the name and solar system of a citadel. Requires
// an authenticated owner with docking access.
func (c *Client) Structure(ctx context.Context, owner *model.Owner, structureID int64) (string, int64, error) {
	req := &request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v2/universe/structures/%d/", structureID),
		owner:  owner,
	}
	payload, _, err := c.fetch(ctx, req)
	if err != nil {
		return "", 0, err
	}

	var info structureInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return "", 0, fmt.Errorf("decode structure: %w", err)
	}
	return info.Name, info.SolarSystemID, nil
}

// StationSystem returns the solar system an NPC station sits in.
func (c *Client) StationSystem(ctx context.Context, stationID int64) (int64, error) {
	req := &request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v2/universe/stations/%d/", stationID),
	}
	payload, _, err := c.fetch(ctx, req)
	if err != nil {
		return 0, err
	}

	var info stationInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return 0, fmt.Errorf("decode station: %w", err)
	}
	return info.SystemID, nil
}

// SystemRegion resolves a solar system to its region by walking
// system -> constellation -> region.
func (c *Client) SystemRegion(ctx context.Context, systemID int64) (int64, error) {
	sysReq := &request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v4/universe/systems/%d/", systemID),
	}
	payload, _, err := c.fetch(ctx, sysReq)
	if err != nil {
		return 0, err
	}
	var sys systemInfo
	if err := json.Unmarshal(payload, &sys); err != nil {
		return 0, fmt.Errorf("decode system: %w", err)
	}

	conReq := &request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v1/universe/constellations/%d/", sys.ConstellationID),
	}
	payload, _, err = c.fetch(ctx, conReq)
	if err != nil {
		return 0, err
	}
	var con constellationInfo
	if err := json.Unmarshal(payload, &con); err != nil {
		return 0, fmt.Errorf("decode constellation: %w", err)
	}
	return con.RegionID, nil
}
