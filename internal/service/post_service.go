package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/draftly/publisher/internal/models"
	"github.com/draftly/publisher/internal/repository"
	"github.com/draftly/publisher/internal/transfer"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const scheduledTimeLayout = "2006-01-02T15:04"

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, time.Duration, error)
	List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error)
	UpdatePost(ctx context.Context, userID int64, pu *transfer.PostUpdate) error
	Remove(ctx context.Context, userID, postID int64) error
	PublishNow(ctx context.Context, userID, postID int64) (*models.ScheduledPost, error)
	UploadImages(ctx context.Context, userID int64, files []*multipart.FileHeader) ([]string, error)
}

type postService struct {
	pr repository.ScheduledPostRepository
	cr repository.ConnectionRepository
	ps PublishService
	r2 R2Service
}

func NewPostService(
	pr repository.ScheduledPostRepository,
	cr repository.ConnectionRepository,
	ps PublishService,
	r2 R2Service) PostService {
	return &postService{
		pr: pr,
		cr: cr,
		ps: ps,
		r2: r2,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, time.Duration, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, 0, err
	}
	if pc.Title == "" {
		err := errors.New("title cannot be empty")
		slog.Info(err.Error())
		return 0, 0, err
	}
	if pc.Content == "" {
		err := errors.New("content cannot be empty")
		slog.Info(err.Error())
		return 0, 0, err
	}
	if len(pc.Targets) == 0 {
		err := errors.New("no platform targets selected")
		slog.Info(err.Error())
		return 0, 0, err
	}

	scheduledTime, err := time.Parse(scheduledTimeLayout, pc.ScheduledTime)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Error(err.Error())
		return 0, 0, err
	}
	if !scheduledTime.After(time.Now()) {
		err := errors.New("scheduled time must be in the future")
		slog.Info(err.Error())
		return 0, 0, err
	}

	targets, err := s.validateTargets(ctx, userID, pc.Targets)
	if err != nil {
		return 0, 0, err
	}

	post := models.ScheduledPost{
		UserID:        userID,
		ArticleID:     pc.ArticleID,
		Title:         pc.Title,
		Content:       pc.Content,
		Excerpt:       pc.Excerpt,
		FeaturedImage: pc.FeaturedImage,
		ImageURLs:     pc.ImageURLs,
		Targets:       targets,
		ScheduledTime: scheduledTime,
		Status:        models.PostStatusPending,
		MaxRetries:    pc.MaxRetries,
	}

	postID, err := s.pr.Create(ctx, nil, &post)
	if err != nil {
		return 0, 0, fmt.Errorf("error creating post: %w", err)
	}

	delay := time.Until(scheduledTime)
	if delay < 0 {
		delay = 0
	}

	return postID, delay, nil
}

func (s *postService) validateTargets(ctx context.Context, userID int64, specs []transfer.TargetSpec) ([]models.PlatformTarget, error) {
	targets := make([]models.PlatformTarget, 0, len(specs))
	for _, spec := range specs {
		if !models.KnownPlatform(spec.Platform) {
			return nil, fmt.Errorf("unknown platform %q", spec.Platform)
		}

		exists, err := s.cr.CheckByUserID(ctx, spec.ConnectionID, userID)
		if err != nil {
			return nil, fmt.Errorf("error checking connection %d: %w", spec.ConnectionID, err)
		}
		if !exists {
			return nil, fmt.Errorf("connection %d does not exist", spec.ConnectionID)
		}

		targets = append(targets, models.PlatformTarget{
			Platform:     spec.Platform,
			ConnectionID: spec.ConnectionID,
			ImageURLs:    spec.ImageURLs,
		})
	}
	return targets, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// UpdatePost edits a post's content or schedule. Only pending posts are
// editable; anything already picked up by the engine is rejected.
func (s *postService) UpdatePost(ctx context.Context, userID int64, pu *transfer.PostUpdate) error {
	if pu == nil {
		err := errors.New("post update data is nil")
		slog.Info(err.Error())
		return err
	}

	post, err := s.ownedPost(ctx, userID, pu.PostID)
	if err != nil {
		return err
	}

	if post.Status != models.PostStatusPending {
		err = fmt.Errorf("post %d is %s and can no longer be edited", post.ID, post.Status)
		slog.Info(err.Error())
		return err
	}

	if pu.Title != "" {
		post.Title = pu.Title
	}
	if pu.Content != "" {
		post.Content = pu.Content
	}
	if pu.Excerpt != "" {
		post.Excerpt = pu.Excerpt
	}
	if pu.FeaturedImage != "" {
		post.FeaturedImage = pu.FeaturedImage
	}
	if pu.ImageURLs != nil {
		post.ImageURLs = pu.ImageURLs
	}
	if pu.ScheduledTime != "" {
		scheduledTime, err := time.Parse(scheduledTimeLayout, pu.ScheduledTime)
		if err != nil {
			return fmt.Errorf("invalid scheduled time format: %w", err)
		}
		if !scheduledTime.After(time.Now()) {
			return errors.New("scheduled time must be in the future")
		}
		post.ScheduledTime = scheduledTime
		post.Status = models.PostStatusPending
	}

	if err := s.pr.Update(ctx, post); err != nil {
		return fmt.Errorf("error updating post: %w", err)
	}
	return nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	if _, err := s.ownedPost(ctx, userID, postID); err != nil {
		return err
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post")
	}
	return nil
}

// PublishNow runs the publish state machine immediately, ignoring the
// scheduled time. The caller gets the structured outcome synchronously; a
// post already in a terminal state comes back as-is with no network calls.
func (s *postService) PublishNow(ctx context.Context, userID, postID int64) (*models.ScheduledPost, error) {
	if _, err := s.ownedPost(ctx, userID, postID); err != nil {
		return nil, err
	}

	return s.ps.ProcessPost(ctx, postID)
}

func (s *postService) UploadImages(ctx context.Context, userID int64, files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		err := errors.New("no files provided")
		slog.Info(err.Error())
		return nil, err
	}

	allowedTypes := map[string]struct{}{
		"jpeg": {}, "jpg": {}, "png": {}, "gif": {}, "webp": {},
	}

	urls := make([]string, 0, len(files))
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return nil, fmt.Errorf("unsupported file type: %w", err)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return nil, fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		key, err := gonanoid.New()
		if err != nil {
			return nil, err
		}

		url, err := s.r2.UploadToR2(ctx, key, fileBytes, fileType.MIME.Value)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}
		urls = append(urls, url)
	}

	return urls, nil
}

func (s *postService) ownedPost(ctx context.Context, userID, postID int64) (*models.ScheduledPost, error) {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil || post == nil {
		return nil, fmt.Errorf("error getting post info")
	}

	return post, nil
}
