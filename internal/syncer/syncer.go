// Package syncer keeps the device cache in step with the backend.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/civicpoints/internal/cache"
	"github.com/dukerupert/civicpoints/internal/connectivity"
	"github.com/dukerupert/civicpoints/internal/metrics"
	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/points"
)

// ErrOffline is returned when a sync is requested without connectivity.
var ErrOffline = errors.New("sync: offline")

// DefaultStaleAfter is how old the last sync may be before cached data is
// considered stale.
const DefaultStaleAfter = 5 * time.Minute

// Source is the backend view the device syncs from.
type Source interface {
	ListActiveRewards(ctx context.Context) ([]model.Reward, error)
	GetBalance(ctx context.Context, memberID int64) (int, error)
	GetSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error)
}

// BalanceSnapshot is the cached form of a member's balance.
type BalanceSnapshot struct {
	MemberID int64 `json:"member_id"`
	Balance  int   `json:"balance"`
}

// Result describes a completed sync.
type Result struct {
	Rewards  int       `json:"rewards"`
	Balance  int       `json:"balance"`
	SyncedAt time.Time `json:"synced_at"`
}

// Coordinator fetches backend state, writes it to the cache and tracks when
// that last happened.
type Coordinator struct {
	cache    *cache.Cache
	source   Source
	state    *connectivity.State
	memberID int64
	now      func() time.Time
	metrics  *metrics.Ledger
	logger   *slog.Logger
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithMetrics(m *metrics.Ledger) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(c *cache.Cache, source Source, state *connectivity.State, memberID int64, opts ...Option) *Coordinator {
	co := &Coordinator{
		cache:    c,
		source:   source,
		state:    state,
		memberID: memberID,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// LastSync returns the time of the last completed sync.
func (c *Coordinator) LastSync(ctx context.Context) (time.Time, bool) {
	data, ok := c.cache.Get(ctx, cache.KeyLastSync)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		c.logger.Warn("invalid sync marker", "value", string(data), "error", err)
		return time.Time{}, false
	}
	return t, true
}

// IsStale reports whether cached data is older than threshold. With no
// marker the cache is stale. A marker exactly threshold old is not stale.
func (c *Coordinator) IsStale(ctx context.Context, threshold time.Duration) bool {
	last, ok := c.LastSync(ctx)
	if !ok {
		return true
	}
	return c.now().Sub(last) > threshold
}

// SyncNow fetches rewards, the member's balance and settings, then writes
// them to the cache and stamps the sync marker. The cache is not touched
// unless every fetch succeeds. Snapshots are written one key at a time, so a
// failed write can leave earlier snapshots newer than the marker; the marker
// itself only moves once all of them land.
func (c *Coordinator) SyncNow(ctx context.Context) (Result, error) {
	res, err := c.syncNow(ctx)
	switch {
	case err == nil:
		c.metrics.RecordSync("ok")
		c.logger.Info("sync complete", "rewards", res.Rewards, "balance", res.Balance)
	case errors.Is(err, ErrOffline):
		c.metrics.RecordSync("offline")
		c.logger.Info("sync skipped", "reason", "offline")
	case errors.Is(err, points.ErrBackendUnavailable):
		c.metrics.RecordSync("unavailable")
		c.logger.Warn("sync failed", "error", err)
	default:
		c.metrics.RecordSync("error")
		c.logger.Warn("sync failed", "error", err)
	}
	return res, err
}

func (c *Coordinator) syncNow(ctx context.Context) (Result, error) {
	if !c.state.IsConnected() {
		return Result{}, ErrOffline
	}

	rewards, err := c.source.ListActiveRewards(ctx)
	if err != nil {
		return Result{}, backendErr("fetch rewards", err)
	}
	points.SortRewards(rewards)

	balance, err := c.source.GetBalance(ctx, c.memberID)
	if err != nil {
		return Result{}, backendErr("fetch balance", err)
	}

	settings, err := c.source.GetSettings(ctx)
	if err != nil {
		return Result{}, backendErr("fetch settings", err)
	}

	if err := c.cache.SetJSON(ctx, cache.KeyRewards, rewards); err != nil {
		return Result{}, fmt.Errorf("write rewards snapshot: %w", err)
	}
	if err := c.cache.SetJSON(ctx, cache.BalanceKey(c.memberID), BalanceSnapshot{MemberID: c.memberID, Balance: balance}); err != nil {
		return Result{}, fmt.Errorf("write balance snapshot: %w", err)
	}
	if err := c.cache.SetJSON(ctx, cache.KeySettings, settings); err != nil {
		return Result{}, fmt.Errorf("write settings snapshot: %w", err)
	}

	syncedAt := c.now().UTC()
	if err := c.cache.Set(ctx, cache.KeyLastSync, []byte(syncedAt.Format(time.RFC3339Nano))); err != nil {
		return Result{}, fmt.Errorf("write sync marker: %w", err)
	}

	return Result{Rewards: len(rewards), Balance: balance, SyncedAt: syncedAt}, nil
}

// backendErr tags backend failures as unavailability so callers retry.
func backendErr(op string, err error) error {
	if errors.Is(err, points.ErrBackendUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, points.ErrBackendUnavailable, err)
}

// SyncOnReconnect runs one SyncNow every time connectivity goes from offline
// to online, until ctx is done or the returned function is called.
func (c *Coordinator) SyncOnReconnect(ctx context.Context) (stop func()) {
	unsubscribe := c.state.Subscribe(func(connected bool) {
		if !connected || ctx.Err() != nil {
			return
		}
		c.logger.Info("connectivity restored, syncing")
		c.SyncNow(ctx)
	})

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			unsubscribe()
		})
	}
}

// CachedRewards returns the last rewards snapshot.
func (c *Coordinator) CachedRewards(ctx context.Context) ([]model.Reward, bool) {
	var rewards []model.Reward
	if !c.cache.GetJSON(ctx, cache.KeyRewards, &rewards) {
		return nil, false
	}
	return rewards, true
}

// CachedBalance returns the last balance snapshot for the device's member.
func (c *Coordinator) CachedBalance(ctx context.Context) (int, bool) {
	var snap BalanceSnapshot
	if !c.cache.GetJSON(ctx, cache.BalanceKey(c.memberID), &snap) {
		return 0, false
	}
	return snap.Balance, true
}

// Settings reads the cached settings, falling back to the backend when the
// cache is empty and the device is online, and to defaults otherwise.
func (c *Coordinator) Settings(ctx context.Context) model.Settings {
	var s model.Settings
	if c.cache.GetJSON(ctx, cache.KeySettings, &s) {
		return s
	}
	if c.state.IsConnected() {
		fetched, err := c.source.GetSettings(ctx)
		if err == nil {
			c.cache.SetJSON(ctx, cache.KeySettings, fetched)
			return fetched
		}
		c.logger.Warn("settings fetch failed", "error", err)
	}
	return model.DefaultSettings()
}

// SaveSettings writes settings to the backend, which holds the durable copy,
// and then refreshes the cache.
func (c *Coordinator) SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	if !c.state.IsConnected() {
		return model.Settings{}, ErrOffline
	}
	saved, err := c.source.SaveSettings(ctx, s)
	if err != nil {
		return model.Settings{}, backendErr("save settings", err)
	}
	c.cache.SetJSON(ctx, cache.KeySettings, saved)
	return saved, nil
}

// Clear wipes the device cache, sync marker included.
func (c *Coordinator) Clear(ctx context.Context) error {
	return c.cache.ClearAll(ctx)
}
