package history

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/metrics"
)

const backendMemory = "memory"

// MemoryRepository keeps conversations in process memory. When more than
// maxConversations ids are live the least recently used one is evicted.
type MemoryRepository struct {
	mu    sync.Mutex
	cache *lru.Cache
	now   func() time.Time
}

var _ conversation.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(maxConversations int) (*MemoryRepository, error) {
	if maxConversations <= 0 {
		maxConversations = 10000
	}
	cache, err := lru.New(maxConversations)
	if err != nil {
		return nil, err
	}
	return &MemoryRepository{cache: cache, now: time.Now}, nil
}

func (r *MemoryRepository) GetOrCreate(_ context.Context, id string, system conversation.Message) (*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.lookup(id)
	if !ok {
		now := r.now().UTC()
		conv = &conversation.Conversation{
			ID:        id,
			Messages:  []conversation.Message{system},
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.cache.Add(id, conv)
	}
	metrics.RecordHistoryOperation(backendMemory, "get_or_create", nil)
	return clone(conv), nil
}

func (r *MemoryRepository) Append(_ context.Context, id string, messages ...conversation.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.lookup(id)
	if !ok {
		metrics.RecordHistoryOperation(backendMemory, "append", conversation.ErrNotFound)
		return conversation.ErrNotFound
	}
	conv.Messages = append(conv.Messages, messages...)
	conv.UpdatedAt = r.now().UTC()
	metrics.RecordHistoryOperation(backendMemory, "append", nil)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.lookup(id)
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return clone(conv), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Remove(id)
	metrics.RecordHistoryOperation(backendMemory, "delete", nil)
	return nil
}

func (r *MemoryRepository) IdleIDs(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, key := range r.cache.Keys() {
		val, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		if conv := val.(*conversation.Conversation); conv.UpdatedAt.Before(cutoff) {
			ids = append(ids, key.(string))
		}
	}
	return ids, nil
}

func (r *MemoryRepository) Health(context.Context) error {
	return nil
}

// Len returns the number of live conversations.
func (r *MemoryRepository) Len() int {
	return r.cache.Len()
}

func (r *MemoryRepository) lookup(id string) (*conversation.Conversation, bool) {
	val, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	return val.(*conversation.Conversation), true
}

func clone(conv *conversation.Conversation) *conversation.Conversation {
	out := *conv
	out.Messages = conv.Snapshot()
	return &out
}
