package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/abluka/internal/config"
	"github.com/DoyleJ11/abluka/internal/httpapi"
	"github.com/DoyleJ11/abluka/internal/hub"
	"github.com/DoyleJ11/abluka/internal/logging"
	"github.com/DoyleJ11/abluka/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	h := hub.NewHub(ctx, st, logger.Named("hub"))

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, httpapi.Options{
		Logger:      logger.Named("http"),
		CreateRate:  rate.Limit(cfg.CreateRate),
		CreateBurst: cfg.CreateBurst,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func() error, error) {
	if cfg.Store != config.StorePostgres {
		return store.NewMemory(), func() error { return nil }, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("ABLUKA_DATABASE_URL is required for the postgres store")
	}

	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, logger.Named("store"))
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
