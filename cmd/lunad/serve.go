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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"luna-backend/internal/api"
	"luna-backend/internal/db"
	"luna-backend/internal/feed"
	"luna-backend/internal/lifecycle"
	"luna-backend/internal/notification"
	"luna-backend/internal/store"
)

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or LUNA_JWT_SECRET) must be set")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	broker := feed.NewBroker()
	defer broker.Close()

	engine := lifecycle.NewEngine(appStore, lifecycle.RealClock(), lifecycle.SettingsFromConfig(cfg.Lifecycle), broker)
	engine.AddSink(lifecycle.FeedSink(broker))

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Println("VAPID keys are not configured; push notifications are disabled")
	} else {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore.DB(), webpushOptions)
		workerPool.Start(ctx)
		engine.AddSink(workerPool)
	}

	// Rows changed by other processes reach this one through Postgres NOTIFY.
	if cfg.Database.EnableChangeFeed && cfg.Database.Driver == "postgres" {
		go feed.NewListener(cfg.Database.DSN, db.ChangeFeedChannel, broker).Run(ctx)
	}

	reconciler := lifecycle.NewReconciler(engine, broker, cfg.Lifecycle.ReconcileInterval)
	reconcilerDone := make(chan struct{})
	go func() {
		reconciler.Run(ctx)
		close(reconcilerDone)
	}()

	catalogCache := cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL)
	handler := api.NewHandler(appStore, engine, broker, catalogCache, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(cfg, handler),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		logger.Printf("HTTP server ListenAndServe: %v", err)
	}

	// Streams never finish on their own; closing the broker ends them before Shutdown waits.
	broker.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}

	cancel()
	<-reconcilerDone

	logger.Println("Server gracefully stopped")
	return nil
}

func runMigrate(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	if _, err := db.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Println("migrations applied")
	return nil
}
