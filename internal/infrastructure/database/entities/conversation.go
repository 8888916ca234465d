package entities

import "time"

// Conversation is the persisted header of a conversation.
type Conversation struct {
	ID        string    `gorm:"type:varchar(128);primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"index"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMessage is one message of a conversation. ID orders messages
// within a conversation.
type ConversationMessage struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement"`
	ConversationID string         `gorm:"type:varchar(128);index;not null"`
	Role           string         `gorm:"type:varchar(16);not null"`
	Content        string         `gorm:"type:text"`
	Blocks         []MessageBlock `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

// MessageBlock mirrors a multimodal content block.
type MessageBlock struct {
	Kind     string `json:"kind"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"`
}
