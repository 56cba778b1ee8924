package undercut

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mwerner/evetrack/internal/model"
)

// TransitionKind classifies a change in undercut state.
type TransitionKind int

const (
	// Became means the order is newly undercut.
	Became TransitionKind = iota
	// Recovered means a previously undercut order is back on top
	// without the owner having repriced it.
	Recovered
)

func (k TransitionKind) String() string {
	switch k {
	case Became:
		return "became_undercut"
	case Recovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// Transition is one notification-worthy state change.
type Transition struct {
	Kind   TransitionKind
	Order  model.OpenOrder
	Status model.UndercutStatus
}

// marketAPI is the slice of the ESI client the detector needs.
type marketAPI interface {
	RegionOrders(ctx context.Context, regionID, typeID int64) ([]model.RegionOrder, error)
}

// RegionResolver maps an order's location to its market region.
type RegionResolver interface {
	RegionForLocation(ctx context.Context, owner *model.Owner, locationID int64) (int64, error)
}

// Detector evaluates undercut status for an owner's open orders.
type Detector struct {
	api     marketAPI
	regions RegionResolver
	logger  *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(api marketAPI, regions RegionResolver, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{api: api, regions: regions, logger: logger}
}

// bookKey identifies one regional order book fetch.
type bookKey struct {
	regionID int64
	typeID   int64
}

// Evaluate computes the undercut status of every open order and the
// transitions since the previous poll. prevOrders and prevStatuses are
// keyed by order ID and may be empty on the first evaluation.
//
// Each (region, type) order book is fetched once per call no matter
// how many of the owner's orders trade in it.
func (d *Detector) Evaluate(
	ctx context.Context,
	owner *model.Owner,
	orders []model.OpenOrder,
	prevOrders map[int64]model.OpenOrder,
	prevStatuses map[int64]model.UndercutStatus,
) ([]model.UndercutStatus, []Transition, error) {
	ownOrderIDs := make(map[int64]bool, len(orders))
	for _, o := range orders {
		ownOrderIDs[o.OrderID] = true
	}

	books := make(map[bookKey][]model.RegionOrder)
	statuses := make([]model.UndercutStatus, 0, len(orders))
	var transitions []Transition

	for _, order := range orders {
		regionID, err := d.regions.RegionForLocation(ctx, owner, order.LocationID)
		if err != nil {
			return nil, nil, fmt.Errorf("region for order %d: %w", order.OrderID, err)
		}

		key := bookKey{regionID: regionID, typeID: order.TypeID}
		book, ok := books[key]
		if !ok {
			book, err = d.api.RegionOrders(ctx, regionID, order.TypeID)
			if err != nil {
				return nil, nil, fmt.Errorf("region orders for %d/%d: %w", regionID, order.TypeID, err)
			}
			books[key] = book
		}

		best := bestCompetitor(order, book, ownOrderIDs)

		status := model.UndercutStatus{
			OrderID: order.OrderID,
			OwnerID: owner.ID,
		}
		if best != nil {
			price := best.Price
			status.IsUndercut = true
			status.CompetitorPrice = &price
			status.CompetitorLocationID = best.LocationID
			status.CompetitorVolume = best.VolumeRemain
		}
		statuses = append(statuses, status)

		if t := classify(owner, order, status, best, prevOrders, prevStatuses); t != nil {
			transitions = append(transitions, *t)
		}
	}

	return statuses, transitions, nil
}

// bestCompetitor returns the strongest competing order in the book, or
// nil when no one beats ours. For sell orders a competitor must be
// strictly cheaper; for buy orders strictly higher.
func bestCompetitor(order model.OpenOrder, book []model.RegionOrder, ownOrderIDs map[int64]bool) *model.RegionOrder {
	var best *model.RegionOrder
	for i := range book {
		c := &book[i]
		if ownOrderIDs[c.OrderID] || c.IsBuyOrder != order.IsBuyOrder {
			continue
		}
		if order.IsBuyOrder {
			if c.Price.LessThanOrEqual(order.Price) {
				continue
			}
			if best == nil || c.Price.GreaterThan(best.Price) {
				best = c
			}
		} else {
			if c.Price.GreaterThanOrEqual(order.Price) {
				continue
			}
			if best == nil || c.Price.LessThan(best.Price) {
				best = c
			}
		}
	}
	return best
}

// classify decides whether this evaluation produced a transition.
//
// A became transition requires the undercutting order to have been
// issued after the owner was registered: on first sync most orders are
// already undercut by long-standing competition, and announcing all of
// that would bury the signal.
//
// A recovered transition requires the owner's price to be unchanged
// since the previous poll. Recovering by repricing is the owner's own
// action, not news.
func classify(
	owner *model.Owner,
	order model.OpenOrder,
	status model.UndercutStatus,
	best *model.RegionOrder,
	prevOrders map[int64]model.OpenOrder,
	prevStatuses map[int64]model.UndercutStatus,
) *Transition {
	prev, hadPrev := prevStatuses[order.OrderID]
	wasUndercut := hadPrev && prev.IsUndercut

	if status.IsUndercut && !wasUndercut {
		if best != nil && best.Issued.After(owner.CreatedAt) {
			return &Transition{Kind: Became, Order: order, Status: status}
		}
		return nil
	}

	if !status.IsUndercut && wasUndercut {
		prevOrder, ok := prevOrders[order.OrderID]
		if ok && prevOrder.Price.Equal(order.Price) {
			return &Transition{Kind: Recovered, Order: order, Status: status}
		}
	}
	return nil
}
