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

	"tophome-storefront/internal/api"
	"tophome-storefront/internal/catalog"
	"tophome-storefront/internal/config"
	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/handler"
	"tophome-storefront/internal/messaging"
	"tophome-storefront/internal/middleware"
	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/repository/memory"
	"tophome-storefront/internal/repository/postgres"
	"tophome-storefront/internal/repository/redis"
	"tophome-storefront/internal/shopper"
	"tophome-storefront/internal/websocket"
	"tophome-storefront/internal/wishlist"
	"tophome-storefront/web"
)

func main() {
	cfg := config.Load()

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting storefront",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageDriver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to open client-state storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	// Without a broker the hub is told directly. With one, every instance
	// publishes and every instance relays to its own hub.
	notifiers := []wishlist.Notifier{hub}
	var broker handler.Broker
	var events *messaging.RabbitMQ
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		notifiers = []wishlist.Notifier{rmq}
		broker = rmq
		events = rmq
	}

	apiClient := api.NewClient(cfg.APIBaseURL, &http.Client{Timeout: 30 * time.Second})

	products, err := catalog.NewService(apiClient, cfg.CatalogTimeout)
	if err != nil {
		slog.Error("failed to load catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}

	renderer, err := handler.NewRenderer(web.Templates)
	if err != nil {
		slog.Error("failed to parse templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := shopper.NewRegistry(storage, apiClient, shopper.Config{
		TokenCheckInterval: cfg.TokenCheckInterval,
		IdleTTL:            cfg.ShopperIdleTTL,
	}, notifiers...)
	go registry.Run(ctx)
	slog.Info("shopper registry started")

	// broker events go to this instance's hub, and those from other
	// instances also resync the shoppers held here
	if events != nil {
		if err := messaging.NewEventConsumer(events, hub, registry).Start(ctx); err != nil {
			slog.Error("failed to start event consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("wishlist event consumer started")
	}

	router := handler.NewRouter(ctx, handler.Dependencies{
		Shoppers:       registry,
		Catalog:        products,
		Renderer:       renderer,
		Hub:            hub,
		Storage:        storage,
		Broker:         broker,
		AllowedOrigins: middleware.ParseOrigins(cfg.AllowedOrigins),
		CookieSecure:   cfg.CookieSecure,
		OpenAPI:        middleware.NewOpenAPIValidatorConfig(cfg.OpenAPIValidation, cfg.OpenAPISpecPath),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("storefront listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	// stops token watchers and waits for wishlist refreshes
	registry.Close()
	hubCancel()

	slog.Info("server stopped gracefully")
}

// openStorage connects the configured client-state storage. The returned
// func releases it.
func openStorage(ctx context.Context, cfg *config.Config) (domain.StateRepository, func(), error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		defer connCancel()

		db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(connCtx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		repo, err := postgres.NewStateRepository(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("connected to postgresql")

		go startStateCleanup(ctx, repo, cfg.StateRetention)
		return repo, func() { db.Close() }, nil

	case config.StorageRedis:
		repo, err := redis.NewStateRepository(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.StateRetention,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("connected to redis")
		return repo, func() { repo.Close() }, nil

	case config.StorageMemory:
		slog.Warn("client state is kept in memory and lost on restart")
		return memory.NewStateRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// startStateCleanup deletes state records untouched for longer than retention
func startStateCleanup(ctx context.Context, repo *postgres.StateRepository, retention time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping state cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := repo.DeleteStale(cleanupCtx, retention)
			if err != nil {
				slog.Error("state cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("state cleanup completed",
					slog.Int64("records_deleted", count))
			}
			cancel()
		}
	}
}
