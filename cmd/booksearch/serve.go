package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/library"
	"github.com/dreamware/bookshard/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON search API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

var serveAddr string

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var monitor *registry.HealthMonitor
	if interval := cfg.GetHealthInterval(); interval > 0 {
		monitor = registry.NewHealthMonitor(interval, logger.Named("health"))
		monitor.SetMaxFailures(cfg.Health.MaxFailures)
		monitor.SetOnUnhealthy(func(name string) {
			if err := a.reg.Disconnect(name); err != nil {
				logger.Warn("failed to disconnect unhealthy shard", zap.String("shard", name), zap.Error(err))
			}
			a.svc.Cache().Purge()
		})
		go monitor.Start(ctx, a.reg.Shards)
		defer monitor.Stop()
	}

	if cfg.Library.Watch {
		stopWatcher, err := startWatcher(ctx, a)
		if err != nil {
			return err
		}
		// Runs before a.close, so no settled event can connect a shard
		// after CloseAll.
		defer stopWatcher()
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           newServer(a, monitor).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("booksearch listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Info("booksearch stopped")
	return nil
}

// startWatcher runs the library watcher in the background. The returned
// stop cancels it and waits for it to exit.
func startWatcher(ctx context.Context, a *app) (stop func(), err error) {
	w, err := library.NewWatcher(a.catalog, a.reg, library.WatcherOptions{
		OnChange: a.svc.Cache().Purge,
		Logger:   a.logger.Named("watcher"),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			a.logger.Error("library watcher exited", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}
