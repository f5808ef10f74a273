package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/draftly/publisher/internal/models"
	"github.com/draftly/publisher/internal/transfer"
)

// PlatformPublisher publishes one post to one external platform. Failures
// never cross this boundary as errors: every outcome, good or bad, comes back
// as a PlatformResult so the coordinator can keep going with other targets.
type PlatformPublisher interface {
	Publish(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget, conn *models.Connection) models.PlatformResult
}

func successResult(url, platformPostID string) models.PlatformResult {
	return models.PlatformResult{Success: true, URL: url, PlatformPostID: platformPostID}
}

func failureResult(format string, args ...any) models.PlatformResult {
	return models.PlatformResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// graphErrorMessage pulls the human-readable message out of a graph API error
// envelope, falling back to the raw body.
func graphErrorMessage(body []byte) string {
	var envelope transfer.GraphErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// buildCaption flattens a rich-text post into the plain-text caption social
// platforms expect.
func buildCaption(post *models.ScheduledPost) string {
	if post.Excerpt != "" {
		return post.Title + "\n\n" + post.Excerpt
	}
	return post.Title
}
