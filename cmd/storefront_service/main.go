package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banoo-shop/storefront/internal/platform/config"
	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/platform/messagebroker"
	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/guard"
	"github.com/banoo-shop/storefront/internal/storefront_service/pagecache"
	httptransport "github.com/banoo-shop/storefront/internal/storefront_service/transport/http"
)

const (
	serviceName = "storefront_service"

	cacheSweepInterval = time.Minute
	janitorInterval    = 5 * time.Minute
	clientIdleTimeout  = 30 * time.Minute
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Storefront service starting...", "port", cfg.ServerPort, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := localstore.Open(ctx, storeOptions(cfg), appLogger)
	if err != nil {
		appLogger.Error("Failed to open client store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	backendClient := backend.NewClient(appLogger, cfg.BackendBaseURL, &http.Client{Timeout: cfg.BackendTimeout})
	queries := querycache.New(querycache.Options{
		Name:      "backend",
		StaleTime: cfg.CacheStaleTime,
		GCTime:    cfg.CacheGCTime,
		Logger:    appLogger,
	})
	pages := pagecache.New(cfg.CacheGCTime)
	dispatcher := revalidation.NewDispatcher(appLogger, cfg.RevalidateURL, cfg.RevalidateSecret, nil)

	registry := app.NewRegistry(app.RegistryConfig{
		Store:            store,
		Auth:             backendClient,
		Products:         backendClient,
		Queries:          queries,
		EnrichmentMaxAge: cfg.EnrichmentMaxAge,
	}, appLogger)

	instanceID := uuid.NewString()
	var publisher httptransport.Publisher
	var natsClient *messagebroker.NatsClient
	if cfg.NATSUrl != "" {
		natsClient, err = messagebroker.NewNatsClient(cfg.NATSUrl, "storefront-service", appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS; revalidation fan-out disabled", "error", err)
		} else {
			publisher = natsClient
			defer natsClient.Close()
			appLogger.Info("Successfully connected to NATS")
		}
	}

	revalidateHandler := httptransport.NewRevalidateHandler(pages, queries, publisher, instanceID, cfg.RevalidateSecret, appLogger)
	if natsClient != nil && publisher != nil {
		if _, err := natsClient.Subscribe(ctx, httptransport.SubjectRevalidated, "", revalidateHandler.HandleBroadcast); err != nil {
			appLogger.Error("Failed to subscribe to revalidation events", "subject", httptransport.SubjectRevalidated, "error", err)
		}
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Registry:    registry,
		Backend:     backendClient,
		Queries:     queries,
		Pages:       pages,
		Revalidator: dispatcher,
		Revalidate:  revalidateHandler,
		Guard: guard.Config{
			AuthRedirect: cfg.AuthRedirect,
			DefaultRoute: cfg.GuardDefaultRoute,
		},
		CookieSecure:     cfg.ClientCookieSecure,
		TokenRefreshSkew: cfg.TokenRefreshSkew,
		Logger:           appLogger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("Storefront server listening on port %d", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		queries.RunSweeper(gctx, cacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		registry.RunJanitor(gctx, janitorInterval, clientIdleTimeout)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutdown signal received, shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Storefront service stopped with error", "error", err)
		os.Exit(1)
	}
	queries.Wait()
	appLogger.Info("Storefront service shut down.")
}

func storeOptions(cfg *config.Config) localstore.OpenOptions {
	return localstore.OpenOptions{
		Driver:      cfg.StoreDriver,
		FileDir:     cfg.StoreFileDir,
		RedisAddr:   cfg.RedisAddr,
		RedisDB:     cfg.RedisDB,
		RedisPrefix: cfg.RedisPrefix,
		PostgresDSN: cfg.PostgresDSN,
	}
}
