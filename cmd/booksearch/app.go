package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/config"
	"github.com/dreamware/bookshard/internal/library"
	"github.com/dreamware/bookshard/internal/registry"
	"github.com/dreamware/bookshard/internal/search"
	"github.com/dreamware/bookshard/internal/storage"
)

// app wires the components every command needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	reg     *registry.Registry
	catalog *library.Catalog
	svc     *search.Service
}

// newApp scans the library and connects the configured shards, or every
// shard found when none are configured. Shards that fail to connect are
// logged and skipped.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	reg := registry.NewRegistry(registry.Options{
		Root:      cfg.Library.Root,
		Extension: cfg.Library.Extension,
		Opener: registry.SQLiteOpener(storage.Options{
			Driver:      cfg.Library.Driver,
			BusyTimeout: cfg.GetBusyTimeout(),
		}),
		Logger: logger.Named("registry"),
	})

	catalog := library.NewCatalog(cfg.Library.Root, cfg.Library.Extension, logger.Named("library"))
	found, err := catalog.Refresh()
	if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}

	names := cfg.Library.Connect
	if len(names) == 0 {
		names = found
	}
	n, err := reg.ConnectAll(ctx, names)
	if err != nil {
		logger.Warn("some shards failed to connect", zap.Error(err))
	}
	logger.Info("library ready",
		zap.String("root", cfg.Library.Root),
		zap.Int("found", len(found)),
		zap.Int("connected", n))

	exec := search.NewExecutor(reg,
		search.WithMaxConcurrency(cfg.Search.MaxConcurrency),
		search.WithTimeout(cfg.GetSearchTimeout()),
		search.WithLogger(logger.Named("executor")),
	)
	svc := search.NewService(exec, search.ServiceOptions{
		Cache:  search.NewCache(cfg.GetCacheTTL(), cfg.Search.CacheEntries),
		Logger: logger.Named("search"),
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		reg:     reg,
		catalog: catalog,
		svc:     svc,
	}, nil
}

// available is the set a search may target: shards that are both present
// on disk and connected.
func (a *app) available() []string {
	var out []string
	for _, name := range a.catalog.Available() {
		if _, ok := a.reg.Lookup(name); ok {
			out = append(out, name)
		}
	}
	return out
}

func (a *app) close() {
	a.reg.CloseAll()
}
