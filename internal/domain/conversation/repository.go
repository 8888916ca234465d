package conversation

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ErrNotFound is returned when a conversation id has no stored history.
var ErrNotFound = errors.New("conversation not found")

// ErrInvalidID is returned for ids that are empty, too long, or contain
// characters outside [A-Za-z0-9._:-].
var ErrInvalidID = errors.New("invalid conversation id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidateID checks a caller supplied conversation id.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// Repository owns every conversation. No other component keeps a message
// after handing it to Append.
type Repository interface {
	// GetOrCreate returns the conversation, seeding it with system when it
	// does not exist yet. The system message is inserted exactly once.
	GetOrCreate(ctx context.Context, id string, system Message) (*Conversation, error)
	// Append adds messages to the end of an existing conversation.
	Append(ctx context.Context, id string, messages ...Message) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Conversation, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
	// IdleIDs lists conversations not updated since cutoff.
	IdleIDs(ctx context.Context, cutoff time.Time) ([]string, error)
	Health(ctx context.Context) error
}

// Unlock releases a lock obtained from Locker.
type Unlock func()

// Locker serializes turns on the same conversation id.
type Locker interface {
	Lock(ctx context.Context, id string) (Unlock, error)
}
