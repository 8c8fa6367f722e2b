package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/api"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/classify"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/config"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/database"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/imapsync"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/logger"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/notify"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/pipeline"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/search"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/storage"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/suggest"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/vector"
	ws "github.com/welldanyogia/webrana-infinimail-backend/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(log)

	slog.Info("starting leadbox backend")

	// Database
	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	folderStateRepo := repository.NewFolderStateRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	events := logger.NewEventLogger()

	// Raw message archive
	archive, err := storage.NewFileArchive(cfg.Archive.Dir)
	if err != nil {
		slog.Error("failed to open raw archive", slog.Any("error", err))
		os.Exit(1)
	}

	// Enrichment services
	classifier := classify.New(cfg.Classifier)

	indexer, err := search.New(cfg.Search)
	if err != nil {
		slog.Error("failed to create search indexer", slog.Any("error", err))
		os.Exit(1)
	}

	vectors, err := vector.New(cfg.Vector, cfg.Classifier.APIKey)
	if err != nil {
		slog.Error("failed to open vector store", slog.Any("error", err))
		os.Exit(1)
	}

	suggester := suggest.New(vectors, cfg.Classifier.APIKey, cfg.Classifier.BaseURL, cfg.Generation)
	sender := suggest.NewSender()

	// Notification channels
	var channels []notify.Channel
	if cfg.Notify.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlackChannel(cfg.Notify.SlackWebhookURL, cfg.Notify.Timeout))
	}
	for _, wh := range cfg.Notify.Webhooks {
		channels = append(channels, notify.NewWebhookChannel(wh.Name, wh.URL, wh.Secret, cfg.Notify.Timeout))
	}
	dispatcher := notify.NewDispatcher(notificationRepo, channels, events, cfg.Notify)

	// Live event hub
	hub := ws.NewHub(log)
	go hub.Run()

	// Pipeline
	pipe := pipeline.New(pipeline.Options{
		Messages:         messageRepo,
		Classifier:       classifier,
		Indexer:          indexer,
		Notifier:         dispatcher,
		Archive:          archive,
		Vectors:          vectors,
		Broadcast:        hub,
		Events:           events,
		QueueSize:        cfg.Pipeline.QueueSize,
		Workers:          cfg.Pipeline.Workers,
		ClassifyInFlight: cfg.Pipeline.ClassifyWorkers,
		IndexInFlight:    cfg.Pipeline.IndexWorkers,
		NotifyInFlight:   cfg.Pipeline.NotifyWorkers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start(ctx)

	sweeper := pipeline.NewSweeper(pipe, messageRepo, events, cfg.Pipeline.SweepInterval)
	sweeper.Start(ctx)

	// IMAP sync manager
	manager := imapsync.NewManager(imapsync.ManagerConfig{
		Dialer:      &imapsync.IMAPDialer{IdleRefresh: cfg.Sync.IdleRefresh},
		Accounts:    accountRepo,
		FolderState: folderStateRepo,
		Sink:        pipe,
		Events:      events,
		BackoffBase: cfg.Sync.BackoffBase,
		BackoffCap:  cfg.Sync.BackoffCap,
		FetchBatch:  cfg.Sync.FetchBatchSize,
	})
	if err := manager.Start(ctx); err != nil {
		slog.Error("failed to start sync manager", slog.Any("error", err))
		os.Exit(1)
	}

	// HTTP server
	router := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Archive:        archive,
		Logger:         log,
		Sync:           manager,
		Reclassify:     pipe,
		Searcher:       indexer,
		Suggester:      suggester,
		Sender:         sender,
		Knowledge:      vectors,
		Hub:            hub,
		APIKey:         cfg.Server.APIKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	})

	go func() {
		addr := cfg.Server.Addr()
		slog.Info("http server listening", slog.String("addr", addr))
		if err := router.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.Any("error", err))
			cancel()
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}

	manager.Stop()
	sweeper.Stop()
	cancel()
	pipe.Stop()

	slog.Info("server stopped")
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
