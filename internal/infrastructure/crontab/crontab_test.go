package crontab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/history"
)

type purgerFunc func(ctx context.Context, cutoff time.Time) (int, error)

func (f purgerFunc) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return f(ctx, cutoff)
}

func TestRunOncePurgesIdleConversations(t *testing.T) {
	repo, err := history.NewMemoryRepository(10)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = repo.GetOrCreate(ctx, "c1", conversation.NewTextMessage(conversation.RoleSystem, "sys"))
	require.NoError(t, err)

	var replyCutoff time.Time
	replies := purgerFunc(func(_ context.Context, cutoff time.Time) (int, error) {
		replyCutoff = cutoff
		return 2, nil
	})

	c := NewCrontab(repo, history.NewLocalLocker(), replies, Settings{HistoryIdleTTL: time.Minute, ReplyRetention: time.Hour}, zerolog.Nop())
	now := time.Now().Add(2 * time.Minute)
	c.now = func() time.Time { return now }

	c.RunOnce(ctx)

	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.Equal(t, now.Add(-time.Hour), replyCutoff)
}

func TestRunOnceSkipsBusyConversations(t *testing.T) {
	repo, err := history.NewMemoryRepository(10)
	require.NoError(t, err)
	locker := history.NewLocalLocker()
	ctx := context.Background()
	for _, id := range []string{"busy", "idle"} {
		_, err = repo.GetOrCreate(ctx, id, conversation.NewTextMessage(conversation.RoleSystem, "sys"))
		require.NoError(t, err)
	}

	unlock, err := locker.Lock(ctx, "busy")
	require.NoError(t, err)
	defer unlock()

	c := NewCrontab(repo, locker, nil, Settings{HistoryIdleTTL: time.Minute}, zerolog.Nop())
	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	c.lockWait = 20 * time.Millisecond

	c.RunOnce(ctx)

	_, err = repo.Get(ctx, "busy")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "idle")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestRunOnceKeepsConversationUpdatedDuringTurn(t *testing.T) {
	repo, err := history.NewMemoryRepository(10)
	require.NoError(t, err)
	locker := history.NewLocalLocker()
	ctx := context.Background()
	_, err = repo.GetOrCreate(ctx, "c1", conversation.NewTextMessage(conversation.RoleSystem, "sys"))
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	sweepAt := time.Now()

	// A turn holds the lock when the sweep lists c1 as idle.
	unlock, err := locker.Lock(ctx, "c1")
	require.NoError(t, err)

	c := NewCrontab(repo, locker, nil, Settings{HistoryIdleTTL: time.Nanosecond}, zerolog.Nop())
	c.now = func() time.Time { return sweepAt }

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.RunOnce(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, repo.Append(ctx, "c1", conversation.NewTextMessage(conversation.RoleAssistant, "reply")))
	unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not finish")
	}

	conv, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "reply", conv.Messages[1].Content)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	called := false
	replies := purgerFunc(func(context.Context, time.Time) (int, error) {
		called = true
		return 0, errors.New("should not run")
	})

	c := NewCrontab(nil, nil, replies, Settings{}, zerolog.Nop())
	assert.False(t, c.Enabled())
	c.RunOnce(context.Background())
	assert.False(t, called)
}

func TestRunReturnsOnCancel(t *testing.T) {
	repo, err := history.NewMemoryRepository(1)
	require.NoError(t, err)
	c := NewCrontab(repo, history.NewLocalLocker(), nil, Settings{HistoryIdleTTL: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("crontab did not stop")
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	c := NewCrontab(nil, nil, nil, Settings{Schedule: "not a schedule", HistoryIdleTTL: time.Hour}, zerolog.Nop())
	assert.Error(t, c.Run(context.Background()))
}
