// Package appbootstrap wires storage, engines and the HTTP surface into a
// running process.
package appbootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"skimo-var/api"
	"skimo-var/config"
	"skimo-var/core/store"
	"skimo-var/core/utils"
)

const shutdownGrace = 10 * time.Second

// Run starts the full service and blocks until SIGINT or SIGTERM.
func Run(cfg *config.AppConfig, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver, logger); err != nil {
		return err
	}

	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}

	for _, w := range comp.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return err
		}
	}

	server := api.NewServer(cfg, comp.serverDeps, logger)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("LISTEN %s driver=%s", cfg.ListenAddr, cfg.DBDriver)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Printf("SHUTDOWN begin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("SHUTDOWN http: %v", err)
	}
	for _, w := range comp.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			logger.Errorf("SHUTDOWN worker: %v", err)
		}
	}
	logger.Printf("SHUTDOWN done")
	return nil
}
