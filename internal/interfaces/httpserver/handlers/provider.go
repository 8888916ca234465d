package handlers

import (
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/config"
	"github.com/malan-ai/malan-server/internal/domain/chat"
	"github.com/malan-ai/malan-server/internal/infrastructure/storage"
)

// Provider wires HTTP handlers.
type Provider struct {
	Chat         *ChatHandler
	Download     *DownloadHandler
	Conversation *ConversationHandler
}

func NewProvider(cfg *config.Config, service *chat.Service, store storage.Storage, log zerolog.Logger) *Provider {
	return &Provider{
		Chat:         NewChatHandler(cfg, service, store, log),
		Download:     NewDownloadHandler(store, log),
		Conversation: NewConversationHandler(service, log),
	}
}
