package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/malan-ai/malan-server/internal/config"
	"github.com/malan-ai/malan-server/internal/domain/chat"
	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/crontab"
	"github.com/malan-ai/malan-server/internal/infrastructure/database"
	"github.com/malan-ai/malan-server/internal/infrastructure/diagnostics"
	"github.com/malan-ai/malan-server/internal/infrastructure/history"
	"github.com/malan-ai/malan-server/internal/infrastructure/inference"
	"github.com/malan-ai/malan-server/internal/infrastructure/logger"
	"github.com/malan-ai/malan-server/internal/infrastructure/observability"
	"github.com/malan-ai/malan-server/internal/infrastructure/promptcatalog"
	"github.com/malan-ai/malan-server/internal/infrastructure/storage"
	"github.com/malan-ai/malan-server/internal/interfaces/httpserver"
	"github.com/malan-ai/malan-server/internal/utils/httpclients"
	"github.com/malan-ai/malan-server/internal/utils/redact"
)

// @title Malan Chat API
// @version 1.0
// @description Chat service that forwards messages and attachments to a chat-completion model.
// @BasePath /
type Application struct {
	httpServer *httpserver.HttpServer
	crontab    *crontab.Crontab
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, cron *crontab.Crontab, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		crontab:    cron,
		log:        log,
	}
}

// Start runs the HTTP server and the maintenance crontab until ctx is done
// or one of them fails.
func (a *Application) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.httpServer.Run(ctx)
	})
	if a.crontab != nil {
		g.Go(func() error {
			return a.crontab.Run(ctx)
		})
	}
	return g.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	catalog, err := promptcatalog.Load(cfg.PromptCatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load prompt catalog")
	}

	backend, err := newHistoryBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.HistoryBackend).Msg("initialize conversation history")
	}
	defer backend.close()

	replyStorage, err := storage.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	inferenceClient := inference.NewClient(
		httpclients.NewClient("inference", cfg.InferenceTimeout),
		newInferenceOptions(cfg),
	)

	chatService := chat.NewService(
		backend.repo,
		backend.locker,
		inferenceClient,
		chat.NewImageDescriber(inferenceClient, cfg.ImageConcurrency, cfg.ImageTimeout, log),
		newDiagnosticSource(cfg, catalog, log),
		chat.NewFormatter(chat.DefaultLineWidth),
		redact.New(cfg.LogPromptPII, uuid.NewString()),
		chat.Settings{
			SystemPrompt:          catalog.SystemPromptOr(cfg.SystemPrompt),
			DefaultConversationID: cfg.DefaultConversationID,
			DiagnosticResource:    cfg.DiagnosticResource,
		},
		log,
	)

	cron := crontab.NewCrontab(backend.repo, backend.locker, replyStorage, crontab.Settings{
		Schedule:       cfg.HistorySweepCron,
		HistoryIdleTTL: cfg.HistoryIdleTTL,
		ReplyRetention: cfg.ReplyFileRetention,
	}, log)

	httpServer := httpserver.New(cfg, log, chatService, replyStorage, healthChecks(cfg, backend.repo, replyStorage))
	app := NewApplication(httpServer, cron, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

// historyBackend bundles the selected repository with its locker and the
// resources to release on exit.
type historyBackend struct {
	repo   conversation.Repository
	locker conversation.Locker
	close  func()
}

func newHistoryBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*historyBackend, error) {
	switch {
	case cfg.IsRedisHistory():
		client, err := history.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Info().Str("prefix", cfg.RedisKeyPrefix).Msg("conversation history in redis")
		return &historyBackend{
			repo:   history.NewRedisRepository(client, cfg.RedisKeyPrefix, cfg.HistoryIdleTTL),
			locker: history.NewRedisLocker(client, cfg.RedisKeyPrefix, cfg.HistoryLockTTL, log),
			close: func() {
				if err := client.Close(); err != nil {
					log.Error().Err(err).Msg("close redis client")
				}
			},
		}, nil

	case cfg.IsPostgresHistory():
		db, err := newGormDB(ctx, newDatabaseConfig(cfg), log)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("conversation history in postgres")
		return &historyBackend{
			repo:   history.NewPostgresRepository(db),
			locker: history.NewLocalLocker(),
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	default:
		repo, err := history.NewMemoryRepository(cfg.HistoryMaxConvs)
		if err != nil {
			return nil, err
		}
		log.Info().Int("max_conversations", cfg.HistoryMaxConvs).Msg("conversation history in memory")
		return &historyBackend{
			repo:   repo,
			locker: history.NewLocalLocker(),
			close:  func() {},
		}, nil
	}
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newInferenceOptions(cfg *config.Config) inference.Options {
	return inference.Options{
		BaseURL:     cfg.InferenceBaseURL,
		APIKey:      cfg.InferenceAPIKey,
		Model:       cfg.InferenceModel,
		VisionModel: cfg.VisionModel,
		Temperature: cfg.InferenceTemperature,
		TopP:        cfg.InferenceTopP,
		MaxTokens:   cfg.InferenceMaxTokens,
	}
}

// newDiagnosticSource merges the catalog resources with the single resource
// configured through the environment, which wins on a name clash.
func newDiagnosticSource(cfg *config.Config, catalog *promptcatalog.Catalog, log zerolog.Logger) *diagnostics.FileSource {
	paths := make(map[string]string, len(catalog.DiagnosticResources)+1)
	for name, path := range catalog.DiagnosticResources {
		paths[name] = path
	}
	if cfg.DiagnosticResource != "" && cfg.DiagnosticPath != "" {
		paths[cfg.DiagnosticResource] = cfg.DiagnosticPath
	}
	src := diagnostics.NewFileSource(paths, cfg.DiagnosticMaxBytes)
	log.Info().Strs("resources", src.Names()).Msg("diagnostic resources configured")
	return src
}

func healthChecks(cfg *config.Config, repo conversation.Repository, store storage.Storage) map[string]httpserver.HealthChecker {
	checks := map[string]httpserver.HealthChecker{"history": repo}
	if cfg.StoresReplyFiles() {
		checks["storage"] = store
	}
	return checks
}
