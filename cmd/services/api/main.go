package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/counter"
	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/handlers"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/queue"
	"github.com/fieldsurvey/fieldsurvey/internal/router"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/uploads"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	handlers.Version = Version
	logger.Info("API service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("Failed to create directories", "error", err)
	}

	// Document store
	connectCtx, connectCancel := context.WithTimeout(context.Background(), utils.ConnectTimeout)
	logger.Info("Opening store", "driver", cfg.Store.Driver)
	st, err := store.Open(connectCtx, cfg.Store, logger)
	connectCancel()
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer func() { _ = st.Close() }()

	// Installation id counter
	ctr, err := counter.New(cfg.Counter, st)
	if err != nil {
		logger.Fatal("Failed to create installation counter", "error", err)
	}
	defer func() { _ = ctr.Close() }()
	logger.Info("Installation counter ready", "type", cfg.Counter.Type)

	// Attachments
	files, err := uploads.NewStore(cfg.Uploads)
	if err != nil {
		logger.Fatal("Failed to prepare uploads directory", "error", err)
	}

	// Domain events (optional)
	var emitter *events.Emitter
	if cfg.Events.Enabled {
		logger.Info("Connecting to Queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
		queueClient, err := queue.NewQueue(cfg.Queue)
		if err != nil {
			logger.Fatal("Failed to connect to Queue", "error", err)
		}
		defer func() { _ = queueClient.Close() }()
		emitter = events.NewEmitter(queueClient, cfg.Events.SubjectPrefix, logger)
		logger.Info("Event publishing enabled", "prefix", cfg.Events.SubjectPrefix)
	}

	// Log authentication status
	if cfg.Auth.Enabled {
		logger.Info("Shared secret authentication enabled", "num_secrets", len(cfg.Auth.Secrets))
	} else {
		logger.Warn("Shared secret authentication DISABLED - all requests will be allowed")
	}

	app := router.New(logger, router.Dependencies{
		Store:   st,
		Counter: ctr,
		Files:   files,
		Emitter: emitter,
	}, *cfg)

	// Start server in goroutine
	go func() {
		addr := cfg.ListenAddress()
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with 10 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
