package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/civicpoints/internal/cache"
	"github.com/dukerupert/civicpoints/internal/client"
	"github.com/dukerupert/civicpoints/internal/config"
	"github.com/dukerupert/civicpoints/internal/connectivity"
	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/syncer"
)

// device bundles the collaborators a kiosk or member device runs with.
type device struct {
	cache   *cache.Cache
	client  *client.Client
	state   *connectivity.State
	prober  *connectivity.Prober
	sync    *syncer.Coordinator
	catalog *points.Catalog
	logger  *slog.Logger
}

// openCache builds the device cache for the configured backend.
func openCache(cfg config.Config, logger *slog.Logger) (*cache.Cache, error) {
	var backend cache.Backend
	switch cfg.CacheBackend {
	case config.CacheMemory:
		backend = cache.NewMemoryBackend()
	case config.CacheRedis:
		backend = cache.NewRedisBackend(cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		b, err := cache.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	opts := []cache.Option{cache.WithLogger(logger.With("component", "cache"))}
	if cfg.CachePassphrase != "" {
		sealer, err := cache.NewSealer(cfg.CachePassphrase)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("create sealer: %w", err)
		}
		opts = append(opts, cache.WithSealer(sealer))
	}
	return cache.New(backend, cfg.CachePrefix, opts...), nil
}

// openDevice opens the cache, resolves the session token and probes the
// backend once so commands start with a known connectivity state.
func openDevice(ctx context.Context, opts *RootOptions) (*device, error) {
	cfg, logger := opts.cfg, opts.logger

	c, err := openCache(cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open cache", err)
	}

	token := cfg.Token
	if token == "" {
		if data, ok := c.Get(ctx, cache.KeyToken); ok {
			token = string(data)
		}
	}

	api := client.New(client.Config{
		BaseURL: cfg.ServerURL,
		Token:   token,
	}, logger.With("component", "client"))

	state := connectivity.NewState(false)
	prober := connectivity.NewProber(connectivity.Config{
		ServerURL: cfg.ServerURL,
		Timeout:   cfg.ProbeTimeout,
	}, state, logger.With("component", "connectivity"))
	prober.Probe(ctx)

	return &device{
		cache:  c,
		client: api,
		state:  state,
		prober: prober,
		sync: syncer.New(c, api, state, cfg.MemberID,
			syncer.WithLogger(logger.With("component", "sync"))),
		catalog: points.NewCatalog(api, c, logger.With("component", "catalog")),
		logger:  logger,
	}, nil
}

func (d *device) Close() error {
	return d.cache.Close()
}
