package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"keikkaduuni/internal/config"
	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/httpserver"
	"keikkaduuni/internal/logging"
	"keikkaduuni/internal/security"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/store/postgres"
	"keikkaduuni/internal/store/sqlite"
	"keikkaduuni/internal/ws"
)

// @title           Keikkaduuni API
// @version         1.0
// @description     Conversations, unread state and realtime events for the Keikkaduuni marketplace.

// @host            localhost:5001
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Environment: cfg.Env,
		LogLevel:    cfg.LogLevel,
		ServiceName: "keikkaduuni",
		Debug:       cfg.Debug,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize WebSocket hub
	hub := ws.NewHub(cfg.WSSendBuffer, ws.NewMetrics(registry), logger.Named("ws"))
	if cfg.RedisURL != "" {
		client, err := ws.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()

		bridge := ws.NewRedisBridge(client, ws.DefaultChannel, hub, logger.Named("redis"))
		if err := bridge.Start(ctx); err != nil {
			logger.Fatal("failed to subscribe to redis", zap.Error(err))
		}
		hub.SetPublisher(bridge)
		logger.Info("websocket fan-out shared through redis")
	}

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	passwordHasher := security.NewPasswordHasher(0)

	// Services
	svcLog := logger.Named("service")
	notifications := service.NewNotificationService(store.Notifications, hub)
	conversations := service.NewConversationService(store, hub, svcLog)
	svc := httpserver.Services{
		Auth:          service.NewAuthService(store.Users, tokenSvc, passwordHasher),
		Users:         service.NewUserService(store.Users, store.Listings),
		Conversations: conversations,
		Messages:      service.NewMessageService(store, hub, svcLog),
		Bookings:      service.NewBookingService(store, conversations, notifications, hub, svcLog),
		Offers:        service.NewOfferService(store, notifications, hub, svcLog),
		Notifications: notifications,
	}

	// Build HTTP router
	router := httpserver.NewRouter(cfg, svc, hub, registry, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr()), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (*sql.DB, *domain.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, postgres.NewStore(db), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, sqlite.NewStore(db), nil
	}
	return nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}
