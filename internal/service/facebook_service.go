package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/draftly/publisher/configs"
	"github.com/draftly/publisher/internal/models"
	"github.com/draftly/publisher/internal/repository"
	"github.com/draftly/publisher/internal/transfer"
	"github.com/draftly/publisher/pkg/utils"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0"

type FacebookService interface {
	PlatformPublisher
	RefreshFacebookToken(ctx context.Context, conn *models.Connection) error
}

type facebookService struct {
	cfg      config.Config
	ar       repository.ArticleRepository
	cr       repository.ConnectionRepository
	client   *http.Client
	graphURL string
}

func NewFacebookService(cfg config.Config, ar repository.ArticleRepository, cr repository.ConnectionRepository) FacebookService {
	return &facebookService{
		cfg:      cfg,
		ar:       ar,
		cr:       cr,
		client:   &http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second},
		graphURL: facebookGraphURL,
	}
}

func (s *facebookService) Publish(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget, conn *models.Connection) models.PlatformResult {
	accessToken, err := utils.Decrypt(conn.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return failureResult("facebook connection %d has unusable credentials: %v", conn.ID, err)
	}

	// Probe the token first so an expired/revoked one fails fast with the
	// platform's own message.
	identity, errMsg := s.resolveIdentity(ctx, accessToken)
	if errMsg != "" {
		return failureResult("facebook token check failed: %s", errMsg)
	}

	caption := buildCaption(post)
	imageURL := s.resolveImage(ctx, post, target)

	if imageURL == "" {
		return s.postToFeed(ctx, accessToken, identity.ID, caption, "")
	}

	result, err := s.uploadPhoto(ctx, accessToken, identity.ID, imageURL, caption)
	if err != nil {
		// The binary upload path can fail for reasons a link post survives
		// (image host down, size limits). Fall back instead of failing the target.
		slog.Info(fmt.Sprintf("facebook photo upload failed, falling back to link post: %v", err))
		return s.postToFeed(ctx, accessToken, identity.ID, caption, imageURL)
	}

	return result
}

func (s *facebookService) resolveIdentity(ctx context.Context, accessToken string) (*transfer.GraphIdentity, string) {
	reqURL := fmt.Sprintf("%s/me?access_token=%s", s.graphURL, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err.Error()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err.Error()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err.Error()
	}

	if resp.StatusCode != http.StatusOK {
		return nil, graphErrorMessage(body)
	}

	var identity transfer.GraphIdentity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, err.Error()
	}
	return &identity, ""
}

// resolveImage picks the image for the post: images attached to the scheduled
// post win, then the source article's image library, then the article's
// legacy image_urls column. Empty means text-only.
func (s *facebookService) resolveImage(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget) string {
	if len(target.ImageURLs) > 0 {
		return target.ImageURLs[0]
	}
	if post.FeaturedImage != "" {
		return post.FeaturedImage
	}
	if len(post.ImageURLs) > 0 {
		return post.ImageURLs[0]
	}

	if post.ArticleID == 0 || s.ar == nil {
		return ""
	}

	images, err := s.ar.ListImagesByArticleID(ctx, post.ArticleID)
	if err != nil {
		slog.Info(err.Error())
	}
	if len(images) > 0 {
		return images[0].FileURL
	}

	article, err := s.ar.GetByID(ctx, post.ArticleID)
	if err != nil {
		slog.Info(err.Error())
		return ""
	}
	if article == nil {
		return ""
	}
	if article.FeaturedImage != "" {
		return article.FeaturedImage
	}
	if len(article.ImageURLs) > 0 {
		return article.ImageURLs[0]
	}
	return ""
}

func (s *facebookService) uploadPhoto(ctx context.Context, accessToken, identityID, imageURL, caption string) (models.PlatformResult, error) {
	imageBytes, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		return models.PlatformResult{}, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("message", caption); err != nil {
		return models.PlatformResult{}, err
	}
	part, err := writer.CreateFormFile("source", "image")
	if err != nil {
		return models.PlatformResult{}, err
	}
	if _, err := part.Write(imageBytes); err != nil {
		return models.PlatformResult{}, err
	}
	if err := writer.Close(); err != nil {
		return models.PlatformResult{}, err
	}

	reqURL := fmt.Sprintf("%s/%s/photos?access_token=%s", s.graphURL, identityID, url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, &buf)
	if err != nil {
		return models.PlatformResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return models.PlatformResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.PlatformResult{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.PlatformResult{}, fmt.Errorf("facebook photo upload returned status %d: %s", resp.StatusCode, graphErrorMessage(body))
	}

	var photo transfer.FacebookPhotoResponse
	if err := json.Unmarshal(body, &photo); err != nil {
		return models.PlatformResult{}, err
	}

	postID := photo.PostID
	if postID == "" {
		postID = photo.ID
	}
	return successResult("https://www.facebook.com/"+postID, postID), nil
}

func (s *facebookService) postToFeed(ctx context.Context, accessToken, identityID, caption, link string) models.PlatformResult {
	data := url.Values{}
	data.Set("message", caption)
	data.Set("access_token", accessToken)
	if link != "" {
		data.Set("link", link)
	}

	reqURL := fmt.Sprintf("%s/%s/feed", s.graphURL, identityID)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(data.Encode()))
	if err != nil {
		return failureResult("error creating facebook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failureResult("facebook feed request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failureResult("error reading facebook response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failureResult("facebook feed post returned status %d: %s", resp.StatusCode, graphErrorMessage(body))
	}

	var feed transfer.FacebookFeedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return failureResult("error parsing facebook response: %v", err)
	}

	return successResult("https://www.facebook.com/"+feed.ID, feed.ID)
}

func (s *facebookService) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// RefreshFacebookToken exchanges the stored token for a fresh long-lived one
// before it expires.
func (s *facebookService) RefreshFacebookToken(ctx context.Context, conn *models.Connection) error {
	accessToken, err := utils.Decrypt(conn.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf(
		"%s/oauth/access_token?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		s.graphURL, s.cfg.FacebookAppID, s.cfg.FacebookAppSecret, url.QueryEscape(accessToken),
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facebook token refresh returned status %d: %s", resp.StatusCode, graphErrorMessage(body))
	}

	var token transfer.GraphTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	refreshed := models.Connection{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedAccessToken,
		TokenExpiresAt: time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}

	return s.cr.SetToken(ctx, conn.ID, &refreshed)
}
