package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ownmi/focussync/internal/auth"
	"github.com/ownmi/focussync/internal/config"
	"github.com/ownmi/focussync/internal/httpapi"
	"github.com/ownmi/focussync/internal/logging"
	"github.com/ownmi/focussync/internal/observability"
	"github.com/ownmi/focussync/internal/records"
	"github.com/ownmi/focussync/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "focusd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if cfg.AuthJWTSecret == "" {
		log.Warn("AUTH_ALLOW_INSECURE is set: tokens are taken as user ids without verification")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := records.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	defer store.Close()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	sessions := session.NewManager(cfg.SessionInactivityTimeout, nil)
	recs := records.NewService(store, time.Duration(cfg.MaxManualSessionHours)*time.Hour)
	verifier := auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthAllowInsecure)

	api := httpapi.New(cfg, sessions, recs, verifier, metrics, log)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	sessions.StartJanitor(gctx, cfg.JanitorInterval)

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":       cfg.BindAddr,
			"inactivity": cfg.SessionInactivityTimeout,
		}).Info("focusd listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
			_ = httpServer.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
