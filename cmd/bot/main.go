package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/analytics"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/assistant"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/bot"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/session"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/storage"
	"github.com/DmitriyMgar/telegram-gpt-bot/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the assistant client and its collaborators
	client := assistant.NewClient(cfg.OpenAI.APIKey)
	sessions := session.NewManager(store, client, client, logger)
	usage := analytics.NewService(store, logger)

	gateway := assistant.NewGateway(client, sessions, usage, assistant.Config{
		AssistantID:  cfg.OpenAI.AssistantID,
		PollInterval: cfg.OpenAI.PollInterval,
		RunTimeout:   cfg.OpenAI.RunTimeout,
		ImageModel:   cfg.OpenAI.ImageModel,
		ImageSize:    cfg.OpenAI.ImageSize,
	}, logger)

	// Initialize bot
	b, err := bot.New(cfg.Telegram, gateway, sessions, cfg.Limits, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the bot
	if err := b.Start(ctx); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}

	logger.Info("Shutting down")
}
