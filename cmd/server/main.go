package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/ai/anthropic"
	"github.com/jobtana1/langchain-chat/internal/api"
	"github.com/jobtana1/langchain-chat/internal/cache/redis"
	"github.com/jobtana1/langchain-chat/internal/config"
	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/export"
	"github.com/jobtana1/langchain-chat/internal/service"
	"github.com/jobtana1/langchain-chat/internal/service/chat"
	"github.com/jobtana1/langchain-chat/internal/storage/cached"
	"github.com/jobtana1/langchain-chat/internal/storage/postgres"
	"github.com/jobtana1/langchain-chat/internal/storage/sqlite"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, keeping info")
	}

	logger.WithField("driver", cfg.Storage.Driver).Info("starting chat history server")

	ctx := context.Background()

	// Open the conversation store
	store, archiver, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open conversation store")
	}
	defer closeStore()

	// Put the Redis cache in front of the store when configured
	if cfg.Redis.URI != "" {
		redisClient, err := redis.New(ctx, cfg.Redis.URI)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()

		cachedStore := cached.New(store, redisClient, cfg.Redis.CacheTTL, logger)
		store = cachedStore
		if archiver != nil {
			archiver = cachedStore.Archiver(archiver)
		}
	}

	// Initialize Anthropic client
	anthropicClient := anthropic.NewClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	if cfg.Anthropic.BaseURL != "" {
		anthropicClient.WithBaseURL(cfg.Anthropic.BaseURL)
	}
	logger.WithField("model", anthropicClient.Model()).Info("completion client ready")

	completer := chat.NewAnthropicCompleter(anthropicClient, chat.RetryPolicy{
		MaxRetries: cfg.Anthropic.MaxRetries,
		BaseDelay:  cfg.Anthropic.RetryDelay,
		Jitter:     cfg.Anthropic.RetryJitter,
	}, logger)
	chatService := chat.NewService(store, completer, cfg.Context.MaxTokens, logger)
	exporter := export.NewExporter(store, cfg.Storage.ExportDir, logger)

	opts := api.Options{
		Archiver:     archiver,
		SystemPrompt: cfg.Anthropic.SystemPrompt,
	}
	if cfg.Server.JWTSecret != "" {
		opts.AuthService = service.NewAuthService(cfg.Server.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	server := api.NewServer(store, exporter, chatService, logger, opts)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				"subject":    api.GetSubject(c),
			}).Info("request")
			return nil
		},
	}))

	server.Register(e)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}

	logger.Info("server stopped")
}

// openStore opens the configured backend. The archiver is nil for backends
// without file-level backups.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (conversation.Store, conversation.Archiver, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		db, err := postgres.New(ctx, cfg.Storage.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := postgres.NewConversationRepository(db.Pool(),
			postgres.WithModel(cfg.Anthropic.Model),
			postgres.WithDedupeByContent(cfg.Storage.DedupeByContent),
			postgres.WithLogger(logger),
		)
		return repo, nil, db.Close, nil

	default:
		store, err := sqlite.Open(ctx, sqlite.Config{
			Path:            cfg.Storage.SQLitePath,
			BackupDir:       cfg.Storage.BackupDir,
			Model:           cfg.Anthropic.Model,
			DedupeByContent: cfg.Storage.DedupeByContent,
			Logger:          logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() { store.Close() }, nil
	}
}
