package conversation

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind discriminates content blocks.
type BlockKind string

const (
	BlockText  BlockKind = "text"
	BlockImage BlockKind = "image"
)

// ContentBlock is one unit of message content. Image blocks carry base64
// encoded bytes in Data.
type ContentBlock struct {
	Kind     BlockKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Data     string    `json:"data,omitempty"`
}

// Message is a single entry of a conversation. Content holds plain text;
// Blocks is used instead when the message mixes text and images.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content,omitempty"`
	Blocks    []ContentBlock `json:"blocks,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTextMessage builds a plain text message stamped with the current time.
func NewTextMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Conversation is the ordered, append-only message history for one id.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a copy of the messages that callers may keep after the
// conversation lock is released.
func (c *Conversation) Snapshot() []Message {
	if c == nil {
		return nil
	}
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}
