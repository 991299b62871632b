// Package main is the entry point for the syncpress server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support. One binary serves both
// roles: SYNC_ROLE selects publisher, consumer, or both.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncpress/internal/apply"
	"syncpress/internal/bus"
	"syncpress/internal/cache"
	"syncpress/internal/config"
	"syncpress/internal/database"
	"syncpress/internal/deploy"
	"syncpress/internal/handlers"
	"syncpress/internal/media"
	"syncpress/internal/metrics"
	"syncpress/internal/registry"
	"syncpress/internal/router"
	"syncpress/internal/signature"
	"syncpress/internal/storage"
	"syncpress/internal/store"
	"syncpress/internal/worker"
)

func main() {
	// Structured logger — outputs JSON in production, text in development.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"role", cfg.Role,
		"addr", cfg.Addr(),
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey (Redis-compatible cache + nonce store).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	// Initialize data stores.
	consumerStore := store.NewConsumerStore(db)
	sourceStore := store.NewSourceTemplateStore(db)
	templateStore := store.NewTemplateStore(db)
	localStore := store.NewLocalTemplateStore(db)
	mappingStore := store.NewMappingStore(db)
	snapshotStore := store.NewSnapshotStore(db)
	jobStore := store.NewJobStore(db)
	mediaStore := store.NewMediaStore(db)

	// Connect to S3-compatible object storage (optional — media remapping
	// is disabled without it).
	var storageClient *storage.Client
	if cfg.S3Endpoint != "" && cfg.S3AccessKey != "" {
		storageClient, err = storage.New(
			cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
			cfg.S3Bucket, cfg.S3PublicURL,
		)
		if err != nil {
			slog.Error("failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		slog.Warn("s3 storage not configured — media remapping disabled")
	}

	// Connect to NATS for sync lifecycle events (optional).
	var events *bus.Bus
	if cfg.NATSURL != "" {
		events, err = bus.New(cfg.NATSURL)
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer events.Close()
		slog.Info("event bus connected", "url", cfg.NATSURL)
	}

	// Prometheus collectors for the sync pipeline.
	collector := metrics.NewProm("syncpress")

	// Media remapper: rewrites remote media references in incoming
	// payloads to locally hosted copies. Disabled without S3.
	var remapper *media.Remapper
	if storageClient != nil {
		remapper = media.NewRemapper(
			media.NewHTTPFetcher(cfg.MediaFetchTimeout, cfg.MediaMaxBytes),
			media.NewS3Persister(storageClient, mediaStore),
			storageClient.BaseURL(),
		)
	}

	// Apply engine, diff calculator, and job worker (consumer role).
	pageCache := cache.NewPageCache(valkeyClient)
	engine := apply.NewEngine(db, localStore, mappingStore, snapshotStore,
		remapper, pageCache, collector, events, logger)
	diffCalc := apply.NewCalculator(localStore, mappingStore)
	jobWorker := worker.New(jobStore, engine, collector, logger)

	// Artifact registry and deploy sender (publisher role).
	reg := registry.New(templateStore, sourceStore)
	sender := deploy.NewSender(consumerStore, cfg.DeployTimeout, cfg.DeployConcurrency, logger)

	// Webhook signature verifier with Valkey-backed nonce replay dedup.
	verifier := signature.NewVerifier(cfg.SharedSecret, cfg.ReplayWindow, cache.NewNonceStore(valkeyClient))

	// Create handler groups with their dependencies.
	webhookHandlers := handlers.NewWebhook(verifier, jobStore, jobWorker, diffCalc, collector, events, logger)
	adminHandlers := handlers.NewAdmin(consumerStore, sourceStore, templateStore, reg, sender,
		mappingStore, localStore, jobStore, snapshotStore, engine, logger)

	// Set up the Chi router with role-appropriate routes.
	r := router.New(cfg, webhookHandlers, adminHandlers)

	// Background worker loop drains queued apply jobs (consumer role).
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.ServesConsumer() {
		go jobWorker.Poll(workerCtx, cfg.WorkerPollInterval)
	}

	// Create the HTTP server with sensible timeouts. WriteTimeout must
	// accommodate inline (async=false) applies that fetch media.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Stop picking up new jobs before draining HTTP.
	stopWorker()

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
