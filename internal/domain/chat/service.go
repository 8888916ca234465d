package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/utils/platformerrors"
	"github.com/malan-ai/malan-server/internal/utils/redact"
)

// Settings are the deployment constants of the chat pipeline.
type Settings struct {
	SystemPrompt          string
	DefaultConversationID string
	DiagnosticResource    string
}

// Service runs one user turn: attachments in, formatted reply out.
type Service struct {
	repo        conversation.Repository
	locker      conversation.Locker
	completer   CompletionClient
	describer   *ImageDescriber
	diagnostics DiagnosticSource
	formatter   *Formatter
	sanitizer   *redact.Sanitizer
	settings    Settings
	tracer      trace.Tracer
	log         zerolog.Logger
}

// NewService wires the chat pipeline. diagnostics and sanitizer may be nil.
func NewService(
	repo conversation.Repository,
	locker conversation.Locker,
	completer CompletionClient,
	describer *ImageDescriber,
	diagnostics DiagnosticSource,
	formatter *Formatter,
	sanitizer *redact.Sanitizer,
	settings Settings,
	log zerolog.Logger,
) *Service {
	if formatter == nil {
		formatter = NewFormatter(DefaultLineWidth)
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		completer:   completer,
		describer:   describer,
		diagnostics: diagnostics,
		formatter:   formatter,
		sanitizer:   sanitizer,
		settings:    settings,
		tracer:      otel.Tracer("malan-chat-api/chat"),
		log:         log.With().Str("component", "chat-service").Logger(),
	}
}

// ResolveConversationID applies the configured default and validates the id.
func (s *Service) ResolveConversationID(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.settings.DefaultConversationID
	}
	if err := conversation.ValidateID(id); err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"conversation id must be 1-128 characters of [A-Za-z0-9._:-]", err, "5a1f0c3e-8d2b-4f6a-9c7e-1b3d5f7a9c2e")
	}
	return id, nil
}

// Chat runs a full turn. Image descriptions and the diagnostic read happen
// before the conversation lock is taken; history read, appends and the
// completion call happen under it.
func (s *Service) Chat(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	id, err := s.ResolveConversationID(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("conversation.id", id),
		attribute.Int("attachments.count", len(req.Attachments)),
	))
	defer span.End()

	images, textFiles := ClassifyAttachments(req.Attachments)

	var descriptions []string
	if len(images) > 0 && s.describer != nil {
		descriptions = s.describer.DescribeAll(ctx, images)
	} else {
		descriptions = make([]string, len(images))
		for i, img := range images {
			descriptions[i] = imageFailurePlaceholder(img.Filename)
		}
	}

	diagnostic := ""
	if req.IncludeDiagnostics {
		diagnostic = s.readDiagnostic(ctx)
	}

	fileEntries, warnings := s.textFileEntries(textFiles)
	turn := assembleTurn(req.Message, diagnostic, images, descriptions, fileEntries)

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "lock conversation")
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "lock conversation")
	}
	defer unlock()

	conv, err := s.repo.GetOrCreate(ctx, id, conversation.NewTextMessage(conversation.RoleSystem, s.settings.SystemPrompt))
	if err != nil {
		span.SetStatus(codes.Error, "load conversation")
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load conversation")
	}
	if err := s.repo.Append(ctx, id, turn...); err != nil {
		span.SetStatus(codes.Error, "append user turn")
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "append user turn")
	}

	history := append(conv.Snapshot(), turn...)
	s.log.Info().
		Str("conversation_id", id).
		Int("messages", len(history)).
		Str("prompt", s.sanitizer.Preview(req.Message)).
		Msg("sending prompt to AI")

	reply, err := s.completer.Complete(ctx, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		s.log.Error().Err(err).Str("conversation_id", id).Msg("AI completion failed")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			ErrInference.Error(), fmt.Errorf("%w: %w", ErrInference, err), "c2e8a4f1-6b3d-4e9a-8f2c-7d1b5a3e9c60")
	}

	if err := s.repo.Append(ctx, id, conversation.NewTextMessage(conversation.RoleAssistant, reply)); err != nil {
		span.SetStatus(codes.Error, "append reply")
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "append assistant reply")
	}

	formatted := s.formatter.Format(reply)
	s.log.Info().
		Str("conversation_id", id).
		Str("reply", s.sanitizer.Preview(formatted)).
		Msg("AI reply")

	return &TurnResult{
		ConversationID: id,
		Reply:          formatted,
		RawReply:       reply,
		Warnings:       warnings,
		ImageCount:     len(images),
		FileCount:      len(textFiles),
	}, nil
}

// History returns the stored messages of a conversation.
func (s *Service) History(ctx context.Context, id string) (*conversation.Conversation, error) {
	id, err := s.ResolveConversationID(ctx, id)
	if err != nil {
		return nil, err
	}
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.wrapLookupError(ctx, err, "get conversation")
	}
	return conv, nil
}

// Reset drops a conversation; the next turn starts from the system prompt.
func (s *Service) Reset(ctx context.Context, id string) error {
	id, err := s.ResolveConversationID(ctx, id)
	if err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "lock conversation")
	}
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "delete conversation")
	}
	s.log.Info().Str("conversation_id", id).Msg("conversation reset")
	return nil
}

func (s *Service) wrapLookupError(ctx context.Context, err error, message string) error {
	if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, message)
	}
	if errors.Is(err, conversation.ErrNotFound) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"conversation not found", err, "9e4b2d7a-1c5f-4a8e-b3d6-0f2a4c6e8b1d")
	}
	return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, message)
}

func (s *Service) readDiagnostic(ctx context.Context) string {
	name := s.settings.DiagnosticResource
	if s.diagnostics == nil || name == "" {
		s.log.Warn().Msg("diagnostic include requested but no resource is configured")
		return ""
	}
	content, err := s.diagnostics.Read(ctx, name)
	if err != nil {
		s.log.Error().Err(err).Str("resource", name).Msg("failed to read diagnostic resource")
		return ""
	}
	return diagnosticEntry(name, content)
}

func (s *Service) textFileEntries(files []Attachment) (entries, warnings []string) {
	for _, f := range files {
		text, ok := decodeText(f.Data)
		if !ok {
			s.log.Warn().Str("filename", f.Filename).Msg("attachment is not valid UTF-8")
			warnings = append(warnings, decodeWarning(f.Filename))
		}
		entries = append(entries, fileEntry(f.Filename, text))
	}
	return entries, warnings
}

// assembleTurn builds the user messages of one turn in their fixed order:
// the raw text, the diagnostic resource, one combined message for all
// images, then one message per text file.
func assembleTurn(text, diagnostic string, images []Attachment, descriptions []string, fileEntries []string) []conversation.Message {
	turn := []conversation.Message{conversation.NewTextMessage(conversation.RoleUser, text)}

	if diagnostic != "" {
		turn = append(turn, conversation.NewTextMessage(conversation.RoleUser, diagnostic))
	}

	if len(images) > 0 {
		parts := make([]string, len(images))
		for i, img := range images {
			parts[i] = imageEntry(img.Filename, descriptions[i])
		}
		turn = append(turn, conversation.NewTextMessage(conversation.RoleUser, strings.Join(parts, "\n\n")))
	}

	for _, entry := range fileEntries {
		turn = append(turn, conversation.NewTextMessage(conversation.RoleUser, entry))
	}
	return turn
}
