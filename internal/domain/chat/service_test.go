package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/utils/platformerrors"
)

const testSystemPrompt = "You are a helpful AI assistant."

type fakeRepo struct {
	mu    sync.Mutex
	convs map[string]*conversation.Conversation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{convs: make(map[string]*conversation.Conversation)}
}

func (r *fakeRepo) GetOrCreate(_ context.Context, id string, system conversation.Message) (*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		conv = &conversation.Conversation{ID: id, Messages: []conversation.Message{system}}
		r.convs[id] = conv
	}
	return &conversation.Conversation{ID: id, Messages: conv.Snapshot()}, nil
}

func (r *fakeRepo) Append(_ context.Context, id string, messages ...conversation.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return conversation.ErrNotFound
	}
	conv.Messages = append(conv.Messages, messages...)
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return &conversation.Conversation{ID: id, Messages: conv.Snapshot()}, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, id)
	return nil
}

func (r *fakeRepo) IdleIDs(context.Context, time.Time) ([]string, error) { return nil, nil }
func (r *fakeRepo) Health(context.Context) error                       { return nil }

func (r *fakeRepo) messages(id string) []conversation.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.convs[id]; ok {
		return conv.Snapshot()
	}
	return nil
}

type mutexLocker struct{ mu sync.Mutex }

func (l *mutexLocker) Lock(context.Context, string) (conversation.Unlock, error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]conversation.Message
}

func (c *fakeCompleter) Complete(_ context.Context, messages []conversation.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, messages)
	return c.reply, c.err
}

type staticDiagnostics map[string]string

func (d staticDiagnostics) Read(_ context.Context, name string) (string, error) {
	content, ok := d[name]
	if !ok {
		return "", errors.New("unknown resource")
	}
	return content, nil
}

func newTestService(repo *fakeRepo, completer *fakeCompleter, vision VisionClient, diagnostics DiagnosticSource) *Service {
	return NewService(
		repo,
		&mutexLocker{},
		completer,
		NewImageDescriber(vision, 2, time.Second, zerolog.Nop()),
		diagnostics,
		NewFormatter(0),
		nil,
		Settings{SystemPrompt: testSystemPrompt, DefaultConversationID: "default", DiagnosticResource: "server"},
		zerolog.Nop(),
	)
}

func contents(msgs []conversation.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestChatFirstTurnSeedsSystemPrompt(t *testing.T) {
	repo := newFakeRepo()
	completer := &fakeCompleter{reply: "Hi! How can I help?"}
	svc := newTestService(repo, completer, nil, nil)

	result, err := svc.Chat(context.Background(), TurnRequest{Message: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, "default", result.ConversationID)
	assert.Equal(t, "Hi! How can I help?", result.Reply)
	assert.Equal(t, []string{
		"system:" + testSystemPrompt,
		"user:Hello",
		"assistant:Hi! How can I help?",
	}, contents(repo.messages("default")))

	require.Len(t, completer.calls, 1)
	assert.Equal(t, []string{"system:" + testSystemPrompt, "user:Hello"}, contents(completer.calls[0]))
}

func TestChatSecondTurnSeesHistory(t *testing.T) {
	repo := newFakeRepo()
	completer := &fakeCompleter{reply: "ok"}
	svc := newTestService(repo, completer, nil, nil)
	ctx := context.Background()

	_, err := svc.Chat(ctx, TurnRequest{ConversationID: "c1", Message: "one"})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, TurnRequest{ConversationID: "c1", Message: "two"})
	require.NoError(t, err)

	require.Len(t, completer.calls, 2)
	assert.Equal(t, []string{
		"system:" + testSystemPrompt,
		"user:one",
		"assistant:ok",
		"user:two",
	}, contents(completer.calls[1]))

	// Other conversations are unaffected.
	assert.Nil(t, repo.messages("default"))
}

func TestChatFormatsCodeReplyButStoresRaw(t *testing.T) {
	repo := newFakeRepo()
	completer := &fakeCompleter{reply: "function foo() { return 1; }"}
	svc := newTestService(repo, completer, nil, nil)

	result, err := svc.Chat(context.Background(), TurnRequest{Message: "write js"})
	require.NoError(t, err)

	assert.Equal(t, "javascript\nfunction foo() { return 1; }\n", result.Reply)
	assert.Equal(t, "function foo() { return 1; }", result.RawReply)
	msgs := repo.messages("default")
	assert.Equal(t, "function foo() { return 1; }", msgs[len(msgs)-1].Content)
}

func TestChatImageFailureBecomesPlaceholder(t *testing.T) {
	repo := newFakeRepo()
	completer := &fakeCompleter{reply: "I could not see the image."}
	vision := visionFunc(func(context.Context, conversation.Message) (string, error) {
		return "", errors.New("vision down")
	})
	svc := newTestService(repo, completer, vision, nil)

	result, err := svc.Chat(context.Background(), TurnRequest{
		Message:     "what is this?",
		Attachments: []Attachment{{Filename: "pic.png", MimeType: "image/png", Data: []byte{0x89}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImageCount)

	assert.Equal(t, []string{
		"system:" + testSystemPrompt,
		"user:what is this?",
		"user:[Image file: pic.png]\n[Image analysis failed for pic.png]",
		"assistant:I could not see the image.",
	}, contents(repo.messages("default")))
}

func TestChatTurnOrdering(t *testing.T) {
	repo := newFakeRepo()
	completer := &fakeCompleter{reply: "done"}
	vision := visionFunc(func(_ context.Context, prompt conversation.Message) (string, error) {
		return "desc of " + prompt.Blocks[1].MimeType, nil
	})
	diagnostics := staticDiagnostics{"server": "package main"}
	svc := newTestService(repo, completer, vision, diagnostics)

	result, err := svc.Chat(context.Background(), TurnRequest{
		Message:            "review",
		IncludeDiagnostics: true,
		Attachments: []Attachment{
			{Filename: "a.txt", MimeType: "text/plain", Data: []byte("alpha")},
			{Filename: "one.png", MimeType: "image/png", Data: []byte{1}},
			{Filename: "b.txt", MimeType: "text/plain", Data: []byte("beta")},
			{Filename: "two.jpg", MimeType: "image/jpeg", Data: []byte{2}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImageCount)
	assert.Equal(t, 2, result.FileCount)

	assert.Equal(t, []string{
		"system:" + testSystemPrompt,
		"user:review",
		"user:[Diagnostic resource: server]\npackage main",
		"user:[Image file: one.png]\ndesc of image/png\n\n[Image file: two.jpg]\ndesc of image/jpeg",
		"user:[File uploaded: a.txt]\nContent:\nalpha",
		"user:[File uploaded: b.txt]\nContent:\nbeta",
		"assistant:done",
	}, contents(repo.messages("default")))
}

func TestChatDiagnosticReadFailureIsSkipped(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCompleter{reply: "ok"}, nil, staticDiagnostics{})

	_, err := svc.Chat(context.Background(), TurnRequest{Message: "hi", IncludeDiagnostics: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"system:" + testSystemPrompt,
		"user:hi",
		"assistant:ok",
	}, contents(repo.messages("default")))
}

func TestChatInvalidUTF8AttachmentWarns(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCompleter{reply: "ok"}, nil, nil)

	result, err := svc.Chat(context.Background(), TurnRequest{
		Message:     "read",
		Attachments: []Attachment{{Filename: "bad.txt", MimeType: "text/plain", Data: []byte{'a', 0xfe}}},
	})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "bad.txt")
	msgs := repo.messages("default")
	assert.Equal(t, "[File uploaded: bad.txt]\nContent:\na\uFFFD", msgs[2].Content)
}

func TestChatCompletionFailure(t *testing.T) {
	repo := newFakeRepo()
	completer := &fakeCompleter{err: errors.New("status 503")}
	svc := newTestService(repo, completer, nil, nil)

	result, err := svc.Chat(context.Background(), TurnRequest{Message: "Hello"})
	require.Error(t, err)
	assert.Nil(t, result)

	assert.ErrorIs(t, err, ErrInference)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))

	// The user turn stays; no assistant message is recorded.
	assert.Equal(t, []string{
		"system:" + testSystemPrompt,
		"user:Hello",
	}, contents(repo.messages("default")))
}

func TestChatRejectsInvalidConversationID(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	svc := newTestService(newFakeRepo(), completer, nil, nil)

	_, err := svc.Chat(context.Background(), TurnRequest{ConversationID: "../etc", Message: "hi"})

	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	assert.Empty(t, completer.calls)
}

func TestHistoryAndReset(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCompleter{reply: "ok"}, nil, nil)
	ctx := context.Background()

	_, err := svc.History(ctx, "missing")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	_, err = svc.Chat(ctx, TurnRequest{ConversationID: "c2", Message: "hi"})
	require.NoError(t, err)

	conv, err := svc.History(ctx, "c2")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 3)

	require.NoError(t, svc.Reset(ctx, "c2"))
	_, err = svc.History(ctx, "c2")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	_, err = svc.Chat(ctx, TurnRequest{ConversationID: "c2", Message: "again"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"system:" + testSystemPrompt,
		"user:again",
		"assistant:ok",
	}, contents(repo.messages("c2")))
}

func TestChatConcurrentTurnsOnSameConversation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCompleter{reply: "ok"}, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Chat(ctx, TurnRequest{Message: "ping"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs := repo.messages("default")
	require.Len(t, msgs, 21)
	// Each user message is directly followed by its assistant reply.
	for i := 1; i < len(msgs); i += 2 {
		assert.Equal(t, conversation.RoleUser, msgs[i].Role)
		assert.Equal(t, conversation.RoleAssistant, msgs[i+1].Role)
	}
}
