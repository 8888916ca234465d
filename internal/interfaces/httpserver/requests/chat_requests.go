package requests

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/malan-ai/malan-server/internal/domain/chat"
)

// ChatRequest carries the non-file fields of POST /api/chat. Form bodies
// use the same names as JSON bodies.
type ChatRequest struct {
	Message           string `json:"message" form:"message"`
	CreateFile        Flag   `json:"createfile" form:"createfile"`
	IncludeServerFile Flag   `json:"includeServerFile" form:"includeServerFile"`
	ConversationID    string `json:"conversation_id" form:"conversation_id"`
}

// ToDomain converts the request plus its attachments to a chat turn
func (r *ChatRequest) ToDomain(attachments []chat.Attachment) chat.TurnRequest {
	return chat.TurnRequest{
		ConversationID:     r.ConversationID,
		Message:            r.Message,
		IncludeDiagnostics: bool(r.IncludeServerFile),
		Attachments:        attachments,
	}
}

// Flag is a loosely typed boolean: "true" and "1" are truthy, anything else
// is false. JSON booleans and numbers are accepted too.
type Flag bool

// ParseFlag applies the truthy rule to a form value.
func ParseFlag(value string) Flag {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1":
		return true
	default:
		return false
	}
}

// UnmarshalParam lets gin's form binding use ParseFlag.
func (f *Flag) UnmarshalParam(param string) error {
	*f = ParseFlag(param)
	return nil
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = false
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = ParseFlag(s)
	default:
		*f = ParseFlag(string(data))
	}
	return nil
}
