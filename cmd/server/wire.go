//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/config"
	"github.com/malan-ai/malan-server/internal/domain/chat"
	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/crontab"
	"github.com/malan-ai/malan-server/internal/infrastructure/inference"
	"github.com/malan-ai/malan-server/internal/infrastructure/logger"
	"github.com/malan-ai/malan-server/internal/infrastructure/promptcatalog"
	"github.com/malan-ai/malan-server/internal/infrastructure/storage"
	"github.com/malan-ai/malan-server/internal/interfaces/httpserver"
	"github.com/malan-ai/malan-server/internal/utils/httpclients"
	"github.com/malan-ai/malan-server/internal/utils/redact"
)

var chatSet = wire.NewSet(
	provideInferenceClient,
	wire.Bind(new(chat.CompletionClient), new(*inference.Client)),
	provideImageDescriber,
	provideDiagnostics,
	provideFormatter,
	provideSanitizer,
	provideChatSettings,
	chat.NewService,
)

// BuildApplication assembles the chat API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		providePromptCatalog,
		newHistoryBackend,
		provideRepository,
		provideLocker,
		storage.New,
		chatSet,
		provideCrontab,
		provideHealthChecks,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func providePromptCatalog(cfg *config.Config) (*promptcatalog.Catalog, error) {
	return promptcatalog.Load(cfg.PromptCatalogPath)
}

func provideRepository(b *historyBackend) conversation.Repository { return b.repo }

func provideLocker(b *historyBackend) conversation.Locker { return b.locker }

func provideInferenceClient(cfg *config.Config) *inference.Client {
	return inference.NewClient(httpclients.NewClient("inference", cfg.InferenceTimeout), newInferenceOptions(cfg))
}

func provideImageDescriber(cfg *config.Config, client *inference.Client, log zerolog.Logger) *chat.ImageDescriber {
	return chat.NewImageDescriber(client, cfg.ImageConcurrency, cfg.ImageTimeout, log)
}

func provideDiagnostics(cfg *config.Config, catalog *promptcatalog.Catalog, log zerolog.Logger) chat.DiagnosticSource {
	return newDiagnosticSource(cfg, catalog, log)
}

func provideFormatter() *chat.Formatter {
	return chat.NewFormatter(chat.DefaultLineWidth)
}

func provideSanitizer(cfg *config.Config) *redact.Sanitizer {
	return redact.New(cfg.LogPromptPII, uuid.NewString())
}

func provideChatSettings(cfg *config.Config, catalog *promptcatalog.Catalog) chat.Settings {
	return chat.Settings{
		SystemPrompt:          catalog.SystemPromptOr(cfg.SystemPrompt),
		DefaultConversationID: cfg.DefaultConversationID,
		DiagnosticResource:    cfg.DiagnosticResource,
	}
}

func provideCrontab(cfg *config.Config, repo conversation.Repository, locker conversation.Locker, store storage.Storage, log zerolog.Logger) *crontab.Crontab {
	return crontab.NewCrontab(repo, locker, store, crontab.Settings{
		Schedule:       cfg.HistorySweepCron,
		HistoryIdleTTL: cfg.HistoryIdleTTL,
		ReplyRetention: cfg.ReplyFileRetention,
	}, log)
}

func provideHealthChecks(cfg *config.Config, repo conversation.Repository, store storage.Storage) map[string]httpserver.HealthChecker {
	return healthChecks(cfg, repo, store)
}
