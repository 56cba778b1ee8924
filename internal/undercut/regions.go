package undercut

import (
	"context"
	"fmt"

	"github.com/mwerner/evetrack/internal/model"
)

// structureIDThreshold separates NPC stations from player structures.
// Structure lookups need an authenticated owner with docking access.
const structureIDThreshold = 10_000_000_000

// LocationStore caches resolved location -> region mappings.
type LocationStore interface {
	// RegionForLocation returns the cached region, if known.
	RegionForLocation(ctx context.Context, locationID int64) (int64, bool, error)

	// SaveLocation records a resolved location chain.
	SaveLocation(ctx context.Context, locationID, systemID, regionID int64) error
}

// universeAPI is the slice of the ESI client the resolver needs.
type universeAPI interface {
	StationSystem(ctx context.Context, stationID int64) (int64, error)
	Structure(ctx context.Context, owner *model.Owner, structureID int64) (string, int64, error)
	SystemRegion(ctx context.Context, systemID int64) (int64, error)
}

// CachedResolver resolves market locations to regions, walking
// station-or-structure -> solar system -> region and caching the
// result. Locations never move, so entries never expire.
type CachedResolver struct {
	api   universeAPI
	store LocationStore
}

// NewCachedResolver creates a resolver over api and store.
func NewCachedResolver(api universeAPI, store LocationStore) *CachedResolver {
	return &CachedResolver{api: api, store: store}
}

// RegionForLocation returns the region containing locationID. owner is
// needed only for player structures.
func (r *CachedResolver) RegionForLocation(ctx context.Context, owner *model.Owner, locationID int64) (int64, error) {
	regionID, ok, err := r.store.RegionForLocation(ctx, locationID)
	if err != nil {
		return 0, fmt.Errorf("location cache: %w", err)
	}
	if ok {
		return regionID, nil
	}

	var systemID int64
	if locationID >= structureIDThreshold {
		_, systemID, err = r.api.Structure(ctx, owner, locationID)
		if err != nil {
			return 0, fmt.Errorf("resolve structure %d: %w", locationID, err)
		}
	} else {
		systemID, err = r.api.StationSystem(ctx, locationID)
		if err != nil {
			return 0, fmt.Errorf("resolve station %d: %w", locationID, err)
		}
	}

	regionID, err = r.api.SystemRegion(ctx, systemID)
	if err != nil {
		return 0, fmt.Errorf("resolve system %d: %w", systemID, err)
	}

	if err := r.store.SaveLocation(ctx, locationID, systemID, regionID); err != nil {
		return 0, fmt.Errorf("cache location %d: %w", locationID, err)
	}
	return regionID, nil
}
