package chat

import (
	"context"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
)

// Attachment is one uploaded file. It only lives for the duration of the
// request that carried it.
type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// TurnRequest is the raw input of one user turn.
type TurnRequest struct {
	ConversationID     string
	Message            string
	IncludeDiagnostics bool
	Attachments        []Attachment
}

// TurnResult is what the caller gets back after a successful turn.
type TurnResult struct {
	ConversationID string
	// Reply is the formatted reply; RawReply is what was stored in history.
	Reply    string
	RawReply string
	// Warnings lists attachments that were passed on in degraded form.
	Warnings   []string
	ImageCount int
	FileCount  int
}

// CompletionClient sends a full message list to a chat-completion endpoint
// and returns the assistant text. Generation parameters are fixed by the
// implementation.
type CompletionClient interface {
	Complete(ctx context.Context, messages []conversation.Message) (string, error)
}

// VisionClient sends a single user message with an embedded image to a
// vision-capable chat-completion endpoint.
type VisionClient interface {
	Describe(ctx context.Context, prompt conversation.Message) (string, error)
}

// DiagnosticSource resolves an operator configured text resource by its
// logical name.
type DiagnosticSource interface {
	Read(ctx context.Context, name string) (string, error)
}
