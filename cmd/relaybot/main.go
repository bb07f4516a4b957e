// Package main contains the entrypoint for relaybot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/joho/godotenv"

	"github.com/edgard/relaybot/internal/ai"
	"github.com/edgard/relaybot/internal/batcher"
	"github.com/edgard/relaybot/internal/bot"
	"github.com/edgard/relaybot/internal/bot/handlers"
	"github.com/edgard/relaybot/internal/bot/tasks"
	"github.com/edgard/relaybot/internal/config"
	"github.com/edgard/relaybot/internal/database"
	"github.com/edgard/relaybot/internal/events"
	"github.com/edgard/relaybot/internal/logger"
	"github.com/edgard/relaybot/internal/memory"
	"github.com/edgard/relaybot/internal/pipeline"
	"github.com/edgard/relaybot/internal/resilience"
	"github.com/edgard/relaybot/internal/server"
	"github.com/edgard/relaybot/internal/telegram"
	"github.com/edgard/relaybot/internal/text"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	aiClient, err := ai.NewClient(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize AI client", "error", err)
		return 1
	}

	mem, closeMemory, err := newMemory(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize vector memory", "error", err)
		return 1
	}
	defer closeMemory()

	publisher := events.New(cfg.Events.Brokers, cfg.Events.Topic, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("Failed to close event publisher", "error", err)
		}
	}()

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	processor, err := pipeline.New(pipeline.Config{
		Instruction: cfg.AI.Instruction,
		Identity: ai.Identity{
			Username:  cfg.Telegram.BotInfo.Username,
			FirstName: cfg.Telegram.BotInfo.FirstName,
		},
		HistoryLimit:     cfg.AI.HistoryLimit,
		MaxContextTokens: cfg.AI.MaxContextTokens,
		RequestTimeout:   cfg.AI.RequestTimeout,
	}, pipeline.Deps{
		Store: store,
		AI:    aiClient,
		Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        cfg.AI.Provider,
			MaxFailures: cfg.AI.BreakerMaxFailures,
			OpenTimeout: cfg.AI.BreakerOpenTimeout,
			Logger:      log,
		}),
		Memory:  mem,
		Events:  publisher,
		Counter: text.NewCounter("cl100k_base", log),
		Policy:  cfg.Channel,
		Logger:  log,
	})
	if err != nil {
		log.Error("Failed to create batch pipeline", "error", err)
		return 1
	}

	batches, err := batcher.New(batcher.Config{
		Timeout:           cfg.Batcher.Timeout,
		DedupWindow:       cfg.Batcher.DedupWindow,
		MaxDedupRecords:   cfg.Batcher.MaxDedupRecords,
		MinBatchSize:      cfg.Batcher.MinBatchSize,
		MaxBatchSize:      cfg.Batcher.MaxBatchSize,
		ProcessTimeout:    cfg.Batcher.ProcessTimeout,
		SendTimeout:       cfg.Batcher.SendTimeout,
		FallbackMessage:   cfg.Messages.FallbackReply,
		EmptyReplyMessage: cfg.Messages.EmptyReply,
	},
		telegram.NewTypingProcessor(processor, tg, telegram.DefaultTypingInterval, log),
		telegram.NewSender(tg),
		log,
	)
	if err != nil {
		log.Error("Failed to create batcher", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Store:   store,
		Batcher: batches,
	}
	tg.RegisterHandlerMatchFunc(handlers.IsConversation, handlers.NewMessageHandler(hDeps))

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.SetCommands(ctx, tg, cmdHandlers); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Batcher: batches,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var opts []bot.Option
	if cfg.HTTP.Addr != "" {
		opts = append(opts, bot.WithServer(server.New(cfg.HTTP.Addr, store, batches, log)))
	}
	app := bot.NewBot(log, tg, sched, batches, opts...)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

// newMemory returns the pgvector-backed memory when enabled, otherwise a no-op.
func newMemory(ctx context.Context, cfg *config.Config, log *slog.Logger) (memory.Memory, func(), error) {
	if !cfg.VectorStore.Enabled {
		return memory.Noop{}, func() {}, nil
	}

	embedder, err := ai.NewEmbedder(ai.EmbedderConfig{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Retry:   ai.RetryConfigFrom(cfg.AI),
	}, log)
	if err != nil {
		return nil, nil, err
	}

	pg, err := memory.NewPGStore(ctx, cfg.VectorStore.URL, cfg.VectorStore.Table)
	if err != nil {
		return nil, nil, err
	}

	svc := memory.NewService(pg, embedder, cfg.VectorStore.TopK, log)
	log.Info("Vector memory enabled", "table", cfg.VectorStore.Table, "top_k", cfg.VectorStore.TopK)
	return svc, svc.Close, nil
}
