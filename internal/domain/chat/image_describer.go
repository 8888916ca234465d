package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
)

// ImageDescriber turns image attachments into text descriptions using a
// vision model. Failures never escape: they come back as placeholder text.
type ImageDescriber struct {
	client      VisionClient
	concurrency int
	timeout     time.Duration
	log         zerolog.Logger
}

// NewImageDescriber bounds the per-request fan-out to concurrency calls and
// each call to timeout. A zero timeout disables the per-call deadline.
func NewImageDescriber(client VisionClient, concurrency int, timeout time.Duration, log zerolog.Logger) *ImageDescriber {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ImageDescriber{
		client:      client,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log.With().Str("component", "image-describer").Logger(),
	}
}

// ImageMimeType picks the MIME type from the file extension only. The match
// is case sensitive: PIC.JPG is sent as image/png.
func ImageMimeType(filename string) string {
	if strings.HasSuffix(filename, ".jpg") || strings.HasSuffix(filename, ".jpeg") {
		return "image/jpeg"
	}
	return "image/png"
}

// VisionPrompt builds the single user message sent for one image.
func VisionPrompt(data []byte, filename string) conversation.Message {
	return conversation.Message{
		Role: conversation.RoleUser,
		Blocks: []conversation.ContentBlock{
			{Kind: conversation.BlockText, Text: fmt.Sprintf("Describe this image (%s) in detail.", filename)},
			{Kind: conversation.BlockImage, MimeType: ImageMimeType(filename), Data: base64.StdEncoding.EncodeToString(data)},
		},
	}
}

// Describe returns a description of one image, or a placeholder when the
// vision call fails.
func (d *ImageDescriber) Describe(ctx context.Context, data []byte, filename string) string {
	if d.client == nil {
		return imageFailurePlaceholder(filename)
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	description, err := d.client.Describe(callCtx, VisionPrompt(data, filename))
	if err != nil {
		d.log.Error().Err(err).Str("filename", filename).Msg("image analysis failed")
		return imageFailurePlaceholder(filename)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return emptyDescriptionPlaceholder(filename)
	}
	d.log.Info().Str("filename", filename).Msg("image analyzed")
	return description
}

// DescribeAll describes every image concurrently. The result slice matches
// the input order regardless of completion order.
func (d *ImageDescriber) DescribeAll(ctx context.Context, images []Attachment) []string {
	results := make([]string, len(images))
	if len(images) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			results[i] = d.Describe(ctx, img.Data, img.Filename)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
