package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/config"
	"github.com/XOOChatx/Chat-X/internal/constants"
	"github.com/XOOChatx/Chat-X/internal/database"
	"github.com/XOOChatx/Chat-X/internal/events"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/retry"
	"github.com/XOOChatx/Chat-X/internal/session"
	"github.com/XOOChatx/Chat-X/internal/tracing"
	"github.com/XOOChatx/Chat-X/pkg/connector"
	"github.com/XOOChatx/Chat-X/pkg/connector/telegram"
	connwa "github.com/XOOChatx/Chat-X/pkg/connector/whatsapp"
	waha "github.com/XOOChatx/Chat-X/pkg/whatsapp"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Chat-X %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
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
	}).Info("Starting Chat-X")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled")
	} else {
		config.ApplyLogLevel(logger, cfg)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracingConfig(cfg), logger)
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
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultDatabaseRetryBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultDatabaseMaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
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
	db.SetLogger(logger)

	broadcaster := events.NewBroadcaster(cfg.Events.SubscriberBuffer, logger)
	manager := session.NewManager(newConnectorFactory(cfg, logger), db, broadcaster, logger, sessionOptions(cfg))
	manager.Start(ctx)

	server, err := NewServer(cfg, manager, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(newCfg *models.Config) {
		if !*verbose {
			config.ApplyLogLevel(logger, newCfg)
		}
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.Warnf("Failed to start config watcher: %v", err)
		}
	}()

	go recoverSessions(ctx, manager, time.Duration(cfg.Session.RecoveryDelaySec)*time.Second, logger)

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-serverErrCh:
		logger.Error(runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.GracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Failed to shutdown server gracefully: %v", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warnf("Failed to stop sessions gracefully: %v", err)
	}
	// ends open event streams
	broadcaster.Close()

	if runErr != nil {
		return runErr
	}
	logger.Info("Server shutdown completed")
	return nil
}

// recoverSessions waits for delay, giving provider backends time to come up
// alongside us, then restores persisted sessions.
func recoverSessions(ctx context.Context, manager *session.Manager, delay time.Duration, logger *logrus.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if _, err := manager.Recover(ctx); err != nil {
		logger.Warnf("Session recovery failed: %v", err)
	}
}

func newConnectorFactory(cfg *models.Config, logger *logrus.Logger) connector.Factory {
	circuitTimeout := time.Duration(constants.DefaultCircuitResetTimeoutSec) * time.Second

	gateway := waha.NewSessionClient(waha.ClientConfig{
		BaseURL:            cfg.WhatsApp.APIBaseURL,
		APIKey:             cfg.WhatsApp.APIKey,
		Timeout:            time.Duration(cfg.WhatsApp.TimeoutSec) * time.Second,
		CircuitMaxFailures: uint32(cfg.WhatsApp.CircuitMaxFails),
		CircuitTimeout:     circuitTimeout,
		Logger:             logger,
	})

	return connector.Registry{
		connector.ProviderWhatsApp: connwa.NewFactory(gateway, connwa.Config{
			StatusPoll: time.Duration(cfg.WhatsApp.StatusPollMs) * time.Millisecond,
			QRSize:     cfg.WhatsApp.QRSizePixels,
			QRTTL:      time.Duration(cfg.Session.QRTTLSec) * time.Second,
			Logger:     logger,
		}),
		connector.ProviderTelegram: telegram.NewFactory(telegram.Config{
			BaseURL:            cfg.Telegram.APIBaseURL,
			Timeout:            time.Duration(cfg.Telegram.TimeoutSec) * time.Second,
			QRSize:             cfg.Telegram.QRSizePixels,
			CircuitMaxFailures: uint32(cfg.Telegram.CircuitMaxFails),
			CircuitTimeout:     circuitTimeout,
			Logger:             logger,
		}),
	}
}

func sessionOptions(cfg *models.Config) session.Options {
	return session.Options{
		QRTTL:                   time.Duration(cfg.Session.QRTTLSec) * time.Second,
		QRRequestTimeout:        time.Duration(cfg.Server.QRRequestTimeoutSec) * time.Second,
		MaxConcurrentReconnects: cfg.Session.MaxConcurrentReconnects,
		AttemptTimeout:          time.Duration(cfg.Session.AttemptTimeoutSec) * time.Second,
		ReadyPollInterval:       time.Duration(cfg.Session.ReadyPollMs) * time.Millisecond,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Duration(cfg.Session.Backoff.InitialBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Session.Backoff.MaxBackoffMs) * time.Millisecond,
			Multiplier:   cfg.Session.Backoff.Multiplier,
			MaxAttempts:  cfg.Session.Backoff.MaxAttempts,
			Jitter:       !cfg.Session.Backoff.DisableJitter,
		},
		HealthInterval:      time.Duration(cfg.Health.IntervalSec) * time.Second,
		ProbeTimeout:        time.Duration(cfg.Health.ProbeTimeoutSec) * time.Second,
		MonitorInitialDelay: time.Duration(cfg.Health.InitialDelaySec) * time.Second,
	}
}

func tracingConfig(cfg *models.Config) tracing.TracingConfig {
	return tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}
}
