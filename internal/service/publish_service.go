package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/draftly/publisher/internal/models"
	"github.com/draftly/publisher/internal/repository"
)

// PublishService drives the per-post state machine:
//
//	pending -> processing -> completed | failed
//
// One call handles one post end to end: every configured target is attempted,
// every outcome lands in the post's result map, and the final status plus the
// full map are persisted in a single update.
type PublishService interface {
	ProcessPost(ctx context.Context, postID int64) (*models.ScheduledPost, error)
}

type publishService struct {
	pr         repository.ScheduledPostRepository
	cr         repository.ConnectionRepository
	publishers map[string]PlatformPublisher
}

func NewPublishService(
	pr repository.ScheduledPostRepository,
	cr repository.ConnectionRepository,
	publishers map[string]PlatformPublisher) PublishService {
	return &publishService{
		pr:         pr,
		cr:         cr,
		publishers: publishers,
	}
}

func (s *publishService) ProcessPost(ctx context.Context, postID int64) (post *models.ScheduledPost, err error) {
	post, err = s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error fetching post %d: %w", postID, err)
	}
	if post == nil {
		return nil, fmt.Errorf("post %d does not exist", postID)
	}

	// Terminal posts are an audit trail. Re-invoking the coordinator on one
	// returns the stored outcome and performs no network calls.
	if post.IsTerminal() {
		return post, nil
	}

	// The post must never be left stuck in processing because of a panic
	// somewhere below.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while publishing post %d: %v", postID, p)
			s.forceFailed(ctx, post, err)
		}
	}()

	ok, err := s.pr.MarkProcessing(ctx, post.ID)
	if err != nil {
		err = fmt.Errorf("error marking post %d as processing: %w", post.ID, err)
		s.forceFailed(ctx, post, err)
		return post, err
	}
	if !ok {
		// Lost the compare-and-swap: another invocation owns this post.
		slog.Info(fmt.Sprintf("post %d is no longer pending, skipping", post.ID))
		return post, nil
	}
	post.Status = models.PostStatusProcessing

	hasError := s.attemptTargets(ctx, post)

	if hasError && post.RetryCount < post.MaxRetries {
		return post, s.scheduleRetry(ctx, post)
	}

	post.Status = models.PostStatusCompleted
	if hasError {
		post.Status = models.PostStatusFailed
	}

	if err := s.pr.Finalize(ctx, post); err != nil {
		err = fmt.Errorf("error persisting outcome for post %d: %w", post.ID, err)
		s.forceFailed(ctx, post, err)
		return post, err
	}

	return post, nil
}

// attemptTargets runs every configured platform target in list order. Targets
// are independent: one failing never skips the rest, and each one leaves an
// entry in the outcome map.
func (s *publishService) attemptTargets(ctx context.Context, post *models.ScheduledPost) bool {
	if post.Results == nil {
		post.Results = make(map[string]models.PlatformResult)
	}

	hasError := false
	for _, target := range post.Targets {
		result := s.attemptTarget(ctx, post, target)
		post.Results[target.Platform] = result
		if !result.Success {
			hasError = true
		}
	}
	return hasError
}

func (s *publishService) attemptTarget(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget) models.PlatformResult {
	conn, err := s.cr.GetByID(ctx, target.ConnectionID)
	if err != nil {
		return failureResult("error resolving connection %d: %v", target.ConnectionID, err)
	}
	if conn == nil {
		return failureResult("connection %d does not exist", target.ConnectionID)
	}
	if !conn.IsActive {
		return failureResult("connection %d (%s) is disabled", conn.ID, conn.Platform)
	}
	if conn.Platform != target.Platform {
		return failureResult("connection %d belongs to %s, not %s", conn.ID, conn.Platform, target.Platform)
	}

	publisher, ok := s.publishers[target.Platform]
	if !ok {
		return failureResult("no publisher registered for platform %s", target.Platform)
	}

	return publisher.Publish(ctx, post, target, conn)
}

// scheduleRetry reverts a failed pass to pending with a backoff-delayed
// scheduled time instead of finalizing, until the retry budget is spent.
func (s *publishService) scheduleRetry(ctx context.Context, post *models.ScheduledPost) error {
	post.RetryCount++
	post.Status = models.PostStatusPending
	backoff := time.Duration(1<<post.RetryCount) * time.Minute
	post.ScheduledTime = time.Now().Add(backoff)
	post.ErrorLog = append(post.ErrorLog, models.ErrorLogEntry{
		Error:     fmt.Sprintf("publish attempt %d failed, retrying in %s", post.RetryCount, backoff),
		Timestamp: time.Now(),
	})

	if err := s.pr.Finalize(ctx, post); err != nil {
		err = fmt.Errorf("error scheduling retry for post %d: %w", post.ID, err)
		s.forceFailed(ctx, post, err)
		return err
	}

	slog.Info(fmt.Sprintf("post %d failed, retry %d/%d scheduled in %s", post.ID, post.RetryCount, post.MaxRetries, backoff))
	return nil
}

// forceFailed is the coordinator's outermost catch: whatever went wrong, the
// post must not stay in processing.
func (s *publishService) forceFailed(ctx context.Context, post *models.ScheduledPost, cause error) {
	if post == nil {
		return
	}
	if cause == nil {
		cause = errors.New("unknown publishing error")
	}

	post.Status = models.PostStatusFailed
	post.ErrorLog = append(post.ErrorLog, models.ErrorLogEntry{
		Error:     cause.Error(),
		Timestamp: time.Now(),
	})

	if err := s.pr.Finalize(ctx, post); err != nil {
		slog.Info(fmt.Sprintf("could not persist failure for post %d: %v", post.ID, err))
	}
}
