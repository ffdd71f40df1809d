package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"wp_syncer/internal/config"
	"wp_syncer/internal/domain"
	"wp_syncer/internal/httpapi"
	"wp_syncer/internal/publisher"
	"wp_syncer/internal/scheduler"
	"wp_syncer/internal/service"
	"wp_syncer/internal/source/wordpress"
	"wp_syncer/internal/status"
	"wp_syncer/internal/storage/postgres"
	"wp_syncer/internal/transform"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single sync, print its summary and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if err := run(cfg, *once, logger); err != nil {
		logger.Error("syncer stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool, logger *slog.Logger) error {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	ctx := context.Background()

	authorID, err := postgres.NewUserStore(db).EnsureUser(ctx, domain.User{
		Username:    cfg.Sync.Author.Username,
		Email:       cfg.Sync.Author.Email,
		DisplayName: cfg.Sync.Author.DisplayName,
		Role:        "admin",
	})
	if err != nil {
		return err
	}

	postStore := postgres.NewPostStore(db)
	runStore := postgres.NewSyncRunStore(db)
	txManager := postgres.NewTransactionManager(db)

	transformer, err := transform.New(transformConfig(cfg.Transform))
	if err != nil {
		return err
	}

	wpSource := wordpress.New(wordpress.Config{
		Name:        cfg.Source.Name,
		BaseURL:     cfg.Source.BaseURL,
		Timeout:     cfg.Source.Timeout,
		UserAgent:   cfg.Source.UserAgent,
		Fields:      cfg.Source.Fields,
		MaxFailures: cfg.Source.Breaker.MaxFailures,
		OpenTimeout: cfg.Source.Breaker.OpenTimeout,
	}, logger)

	writer := service.NewPostWriter(postStore, txManager, logger, service.WriterConfig{
		AuthorID:      authorID,
		WriteAttempts: cfg.Sync.WriteAttempts,
		SkipUnchanged: cfg.Sync.ShouldSkipUnchanged(),
	})

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	reporter := status.NewReporter(wpSource.Name(), wpSource.Endpoint(), runStore, logger)
	if err := reporter.Load(ctx); err != nil {
		logger.Warn("failed to restore last sync run", "error", err)
	}

	syncService := service.NewSyncService(wpSource, transformer, writer, pub, reporter, logger, cfg.Sync)

	sched, err := scheduler.NewScheduler(syncService, cfg.Sync.Schedule, cfg.Sync.RunTimeout, logger)
	if err != nil {
		return err
	}

	if once {
		return runOnce(ctx, sched)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := httpapi.NewServer(cfg.HTTP, httpapi.Deps{
		Scheduler: sched,
		Syncer:    syncService,
		Status:    reporter,
		Posts:     postStore,
	}, logger)

	logger.Info("starting wordpress syncer",
		"source", wpSource.Name(),
		"endpoint", wpSource.Endpoint(),
		"schedule", cfg.Sync.Schedule,
		"max_pages", cfg.Sync.MaxPages,
	)

	sched.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	sched.Stop()
	logger.Info("waiting for in-flight sync to finish")
	sched.Wait()

	logger.Info("syncer stopped")
	return nil
}

func runOnce(ctx context.Context, sched *scheduler.Scheduler) error {
	syncRun, err := sched.RunOnce(ctx)
	if err != nil {
		return err
	}

	summary := syncRun.Summary()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}

	if !summary.Success {
		return errors.New("sync finished with errors")
	}
	return nil
}

func transformConfig(cfg config.TransformConfig) transform.Config {
	themes := make([]transform.Theme, 0, len(cfg.Themes))
	for _, t := range cfg.Themes {
		themes = append(themes, transform.Theme{Name: t.Name, Keywords: t.Keywords})
	}

	return transform.Config{
		ExcerptWords:   cfg.ExcerptWords,
		WordsPerMinute: cfg.WordsPerMinute,
		DefaultTheme:   cfg.DefaultTheme,
		Themes:         themes,
		MatureKeywords: cfg.MatureKeywords,
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
