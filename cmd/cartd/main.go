package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/cart"
	"github.com/fjod/go_cart/local-cart/internal/config"
	h "github.com/fjod/go_cart/local-cart/internal/http"
	"github.com/fjod/go_cart/local-cart/internal/logger"
	"github.com/fjod/go_cart/local-cart/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("failed to init tracing")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("error shutting down tracer provider")
		}
	}()

	st, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}
	defer closeStorage()

	store, err := cart.Open(ctx, st, cart.WithKey(cfg.CartKey), cart.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("failed to open cart")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(h.NewRouter(store, cfg.RequestTimeout, log), "local-cart"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("port", cfg.HTTPPort).Info("cart service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down cart service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// close the store first so open event streams end
		if err := store.Close(shutdownCtx); err != nil {
			log.WithError(err).Warn("last cart snapshot was not written")
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("cart service stopped with error")
		closeStorage()
		os.Exit(1)
	}

	log.Info("cart service stopped")
}
