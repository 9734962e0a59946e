package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"channelsync/internal/config"
	"channelsync/internal/constants"
	"channelsync/internal/database"
	"channelsync/internal/models"
	"channelsync/internal/retry"
	"channelsync/internal/service"
	"channelsync/internal/tracing"
	"channelsync/pkg/provider"
	"channelsync/pkg/provider/facebook"
	"channelsync/pkg/provider/greenapi"
	"channelsync/pkg/provider/instagram"
	"channelsync/pkg/provider/types"
	"channelsync/pkg/stream"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("ChannelSync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting ChannelSync")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			if level > logrus.InfoLevel {
				level = logrus.InfoLevel
			}
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	tracingCfg := cfg.Tracing
	if tracingCfg.ServiceName == "" {
		tracingCfg = tracing.DefaultConfig()
		tracingCfg.Enabled = cfg.Tracing.Enabled
	}
	tracingManager := tracing.NewManager(tracingCfg, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	dbRetry := retry.NewExecutor(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	}, func(error) bool { return true })

	err = dbRetry.Execute(ctx, func(ctx context.Context) error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	clients, err := buildProviderClients(cfg, logger)
	if err != nil {
		return err
	}
	factory, err := provider.NewFactory(clients...)
	if err != nil {
		return fmt.Errorf("failed to build provider factory: %w", err)
	}
	logger.WithField("providers", factory.Types()).Info("Provider clients initialized")

	sink := service.NewChannelNotificationSink(constants.DefaultNotificationBufferSize, logger)
	defer sink.Close()

	// Drain notifications to the log; a UI transport would subscribe here.
	go func() {
		for n := range sink.Events() {
			logger.WithFields(logrus.Fields{
				"type":           n.Type,
				"channelId":      n.ChannelID,
				"conversationId": n.ConversationID,
			}).Info("Notification emitted")
		}
	}()

	provisioner := service.NewProvisioner(db, factory, cfg.Retry, cfg.Provisioning, logger)
	verification := service.NewVerificationService(db, sink, cfg.Verification, logger)
	defer verification.Shutdown()

	syncManager := service.NewSyncManager(cfg.Sync, sink, logger)

	sweepInterval := time.Duration(cfg.Verification.SweepIntervalSec) * time.Second
	sweeper := service.NewScheduler("challenge-sweep", sweepInterval, verification.SweepExpired, logger)
	go sweeper.Start(ctx)
	defer sweeper.Stop()

	rateLimiter := NewRateLimiter(cfg.Server.RateLimitRequests, time.Duration(cfg.Server.RateLimitWindowSec)*time.Second)
	pruner := service.NewScheduler("ratelimit-prune", time.Duration(cfg.Server.RateLimitWindowSec)*time.Second, func(context.Context) error {
		rateLimiter.Cleanup()
		return nil
	}, logger)
	go pruner.Start(ctx)
	defer pruner.Stop()

	if cfg.Stream.Enabled {
		consumer := stream.NewConsumer(cfg.Stream, syncManager, logger)
		consumer.Start(ctx)
		defer consumer.Close()
		logger.WithField("url", cfg.Stream.URL).Info("Realtime stream consumer started")
	} else {
		logger.Info("Realtime stream consumer is disabled")
	}

	server := NewServer(cfg.Server, provisioner, verification, syncManager, rateLimiter, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// buildProviderClients constructs one client per configured provider.
func buildProviderClients(cfg *models.Config, logger *logrus.Logger) ([]types.Client, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second,
	}

	var clients []types.Client
	if cfg.Providers.Facebook.APIBaseURL != "" {
		clients = append(clients, facebook.NewClient(cfg.Providers.Facebook, httpClient, logger))
	}
	if cfg.Providers.Instagram.APIBaseURL != "" {
		clients = append(clients, instagram.NewClient(cfg.Providers.Instagram, httpClient, logger))
	}
	if cfg.Providers.WhatsApp.APIBaseURL != "" {
		clients = append(clients, greenapi.NewClient(cfg.Providers.WhatsApp, httpClient, logger))
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return clients, nil
}
