// Package names resolves character, type, and location IDs to display
// names, backed by a permanent cache.
package names

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mwerner/evetrack/internal/esi"
	"github.com/mwerner/evetrack/internal/model"
)

// chunkSize is the upstream limit on IDs per names call.
const chunkSize = 1000

// structureIDThreshold separates public IDs from player structures,
// which the bulk names endpoint refuses.
const structureIDThreshold = 10_000_000_000

// Store caches resolved names. Names never change for an ID.
type Store interface {
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
	SaveNames(ctx context.Context, names map[int64]string) error
}

// api is the slice of the ESI client the resolver needs.
type api interface {
	ResolveNames(ctx context.Context, ids []int64) ([]esi.NameEntry, error)
	Structure(ctx context.Context, owner *model.Owner, structureID int64) (string, int64, error)
}

// Resolver resolves IDs to names through the cache.
type Resolver struct {
	api    api
	store  Store
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(api api, store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{api: api, store: store, logger: logger}
}

// Resolve returns a name for every requested ID. Cached names are
// served directly; the rest are fetched in chunks, with player
// structures resolved one at a time through the authenticated
// endpoint. An ID nobody can name still gets a placeholder, never a
// hole in the map.
func (r *Resolver) Resolve(ctx context.Context, owner *model.Owner, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	unique := dedupe(ids)
	cached, err := r.store.Names(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("name cache: %w", err)
	}

	var missingPublic, missingStructures []int64
	for _, id := range unique {
		if name, ok := cached[id]; ok {
			out[id] = name
			continue
		}
		if id >= structureIDThreshold {
			missingStructures = append(missingStructures, id)
		} else {
			missingPublic = append(missingPublic, id)
		}
	}

	resolved := make(map[int64]string)

	for start := 0; start < len(missingPublic); start += chunkSize {
		end := start + chunkSize
		if end > len(missingPublic) {
			end = len(missingPublic)
		}
		entries, err := r.api.ResolveNames(ctx, missingPublic[start:end])
		if err != nil {
			return nil, fmt.Errorf("resolve names: %w", err)
		}
		for _, e := range entries {
			resolved[e.ID] = e.Name
		}
	}

	for _, id := range missingStructures {
		name, _, err := r.api.Structure(ctx, owner, id)
		if err != nil {
			// Docking access can be revoked; a placeholder is all we
			// can do.
			r.logger.Warn("structure name lookup failed",
				"structure_id", id,
				"error", err)
			continue
		}
		resolved[id] = name
	}

	if len(resolved) > 0 {
		if err := r.store.SaveNames(ctx, resolved); err != nil {
			return nil, fmt.Errorf("save names: %w", err)
		}
	}

	for id, name := range resolved {
		out[id] = name
	}
	for _, id := range unique {
		if _, ok := out[id]; !ok {
			out[id] = fmt.Sprintf("Unknown (%d)", id)
		}
	}
	return out, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
