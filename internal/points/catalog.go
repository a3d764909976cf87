package points

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dukerupert/civicpoints/internal/cache"
	"github.com/dukerupert/civicpoints/internal/model"
)

// Snapshots is the slice of the persisted cache the catalog writes through to.
type Snapshots interface {
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any) error
}

// Catalog lists the rewards on offer.
type Catalog struct {
	source RewardSource
	cache  Snapshots
	logger *slog.Logger
}

// NewCatalog builds a catalog over source. snapshots may be nil.
func NewCatalog(source RewardSource, snapshots Snapshots, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{source: source, cache: snapshots, logger: logger}
}

// ListActive returns active rewards, cheapest first with ties broken by ID.
func (c *Catalog) ListActive(ctx context.Context) ([]model.Reward, error) {
	rewards, err := c.source.ListActiveRewards(ctx)
	if err != nil {
		return nil, unavailable(err)
	}

	active := make([]model.Reward, 0, len(rewards))
	for _, r := range rewards {
		if r.IsActive {
			active = append(active, r)
		}
	}
	SortRewards(active)

	if c.cache != nil {
		c.cache.SetJSON(ctx, cache.KeyRewards, active)
	}
	return active, nil
}

// ListActiveCached is ListActive with a fallback to the last snapshot when
// the backend cannot be reached. fromCache reports which path answered.
func (c *Catalog) ListActiveCached(ctx context.Context) (rewards []model.Reward, fromCache bool, err error) {
	rewards, err = c.ListActive(ctx)
	if err == nil {
		return rewards, false, nil
	}
	if c.cache == nil {
		return nil, false, err
	}

	var snapshot []model.Reward
	if !c.cache.GetJSON(ctx, cache.KeyRewards, &snapshot) {
		return nil, false, err
	}
	c.logger.Info("serving cached catalog", "error", err, "count", len(snapshot))
	return snapshot, true, nil
}

// SortRewards orders rewards by cost ascending, then ID.
func SortRewards(rewards []model.Reward) {
	sort.SliceStable(rewards, func(i, j int) bool {
		if rewards[i].PointsCost != rewards[j].PointsCost {
			return rewards[i].PointsCost < rewards[j].PointsCost
		}
		return rewards[i].ID < rewards[j].ID
	})
}
