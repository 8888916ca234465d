package responses

import (
	"time"

	"github.com/malan-ai/malan-server/internal/domain/chat"
	"github.com/malan-ai/malan-server/internal/domain/conversation"
)

// ChatResponse is the JSON answer of a chat turn.
type ChatResponse struct {
	Reply          string   `json:"reply"`
	ConversationID string   `json:"conversation_id"`
	Warnings       []string `json:"warnings,omitempty"`
}

// ReplyFile points at a stored reply file.
type ReplyFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ChatFileResponse is returned when the reply was written to storage.
type ChatFileResponse struct {
	File           ReplyFile `json:"file"`
	ConversationID string    `json:"conversation_id"`
	Warnings       []string  `json:"warnings,omitempty"`
}

// MessageResponse is one stored message.
type MessageResponse struct {
	Role      string                      `json:"role"`
	Content   string                      `json:"content,omitempty"`
	Blocks    []conversation.ContentBlock `json:"blocks,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

// ConversationResponse is the stored history of one conversation.
type ConversationResponse struct {
	ID        string            `json:"id"`
	Messages  []MessageResponse `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// BuildChatResponse creates the JSON body of a finished turn
func BuildChatResponse(result *chat.TurnResult) *ChatResponse {
	return &ChatResponse{
		Reply:          result.Reply,
		ConversationID: result.ConversationID,
		Warnings:       result.Warnings,
	}
}

// BuildChatFileResponse creates the body returned after storing a reply file
func BuildChatFileResponse(result *chat.TurnResult, name, url string) *ChatFileResponse {
	return &ChatFileResponse{
		File:           ReplyFile{Name: name, URL: url},
		ConversationID: result.ConversationID,
		Warnings:       result.Warnings,
	}
}

// BuildConversationResponse creates the history view of a conversation
func BuildConversationResponse(conv *conversation.Conversation) *ConversationResponse {
	messages := make([]MessageResponse, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, MessageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			Blocks:    m.Blocks,
			CreatedAt: m.CreatedAt,
		})
	}
	return &ConversationResponse{
		ID:        conv.ID,
		Messages:  messages,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}
