package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"resty.dev/v3"

	"github.com/malan-ai/malan-server/internal/domain/chat"
	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/metrics"
	"github.com/malan-ai/malan-server/internal/utils/platformerrors"
)

const (
	kindChat   = "chat"
	kindVision = "vision"
)

// Options are the fixed parameters of every call made by Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Client talks to an OpenAI compatible /chat/completions endpoint. It
// serves both the completion and the vision side of a chat turn.
type Client struct {
	client  *resty.Client
	baseURL string
	opts    Options
	tracer  trace.Tracer
}

var (
	_ chat.CompletionClient = (*Client)(nil)
	_ chat.VisionClient     = (*Client)(nil)
)

func NewClient(client *resty.Client, opts Options) *Client {
	if strings.TrimSpace(opts.VisionModel) == "" {
		opts.VisionModel = opts.Model
	}
	return &Client{
		client:  client,
		baseURL: normalizeBaseURL(opts.BaseURL),
		opts:    opts,
		tracer:  otel.Tracer("malan-chat-api/inference"),
	}
}

// Complete sends the whole conversation with the configured generation
// parameters and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
	}
	return c.create(ctx, kindChat, request)
}

// Describe sends a single multimodal user message. No generation parameters
// are set so the endpoint defaults apply.
func (c *Client) Describe(ctx context.Context, prompt conversation.Message) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:    c.opts.VisionModel,
		Messages: toOpenAIMessages([]conversation.Message{prompt}),
	}
	return c.create(ctx, kindVision, request)
}

func (c *Client) create(ctx context.Context, kind string, request openai.ChatCompletionRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "inference."+kind, trace.WithAttributes(
		attribute.String("llm.model", request.Model),
		attribute.Int("llm.messages", len(request.Messages)),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.CreateChatCompletion(ctx, request)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordCompletion(kind, request.Model, status, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", err
	}
	metrics.RecordTokens(kind, request.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"completion response has no choices", chat.ErrMalformedResponse, "4f8c1a2e-7b3d-4e6f-9a1c-2d5e8b0f3a7c")
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateChatCompletion posts a raw request to the endpoint.
func (c *Client) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	var respBody openai.ChatCompletionResponse
	resp, err := c.prepareRequest(ctx).
		SetBody(request).
		SetResult(&respBody).
		Post(c.endpoint("/chat/completions"))
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"chat completion request failed", err, "d9b2e6f1-3a4c-4b8d-8e7f-6c1a5d2b9e04")
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "chat completion request failed")
	}
	return &respBody, nil
}

func (c *Client) prepareRequest(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(c.opts.APIKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", c.opts.APIKey))
	}
	return req
}

func (c *Client) endpoint(path string) string {
	if c.baseURL == "" {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}

func (c *Client) errorFromResponse(ctx context.Context, resp *resty.Response, message string) error {
	fields := map[string]any{"status": resp.StatusCode()}
	trimmed := strings.TrimSpace(resp.String())
	if trimmed == "" {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			fmt.Sprintf("%s: status %d", message, resp.StatusCode()), nil, "b7e3a9c2-5d1f-4a6b-8c0e-3f2d7a9b1e56", fields)
	}
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
		fmt.Sprintf("%s: status %d: %s", message, resp.StatusCode(), trimmed), nil, "e1a4c7d2-9b3f-4e8a-a5c6-0d2f8b4e7a13", fields)
}

func normalizeBaseURL(base string) string {
	trimmed := strings.TrimSpace(base)
	trimmed = strings.TrimRight(trimmed, "/")
	return trimmed
}

func toOpenAIMessages(messages []conversation.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: string(m.Role)}
		if len(m.Blocks) == 0 {
			msg.Content = m.Content
			out = append(out, msg)
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			switch b.Kind {
			case conversation.BlockImage:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURL(b.MimeType, b.Data)},
				})
			default:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: b.Text,
				})
			}
		}
		msg.MultiContent = parts
		out = append(out, msg)
	}
	return out
}

func dataURL(mimeType, base64Data string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Data)
}
