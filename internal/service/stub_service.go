package service

import (
	"context"

	"github.com/draftly/publisher/internal/models"
)

// stubPublisher stands in for platforms without a real integration yet. It
// must report an explicit failure: a fabricated success would tell the user a
// post was published when it was not.
type stubPublisher struct {
	platform string
}

func NewStubPublisher(platform string) PlatformPublisher {
	return &stubPublisher{platform: platform}
}

func (s *stubPublisher) Publish(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget, conn *models.Connection) models.PlatformResult {
	return failureResult("publishing to %s is not implemented yet", s.platform)
}
