package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
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

const instagramGraphURL = "https://graph.instagram.com/v21.0"

type InstagramService interface {
	PlatformPublisher
	RefreshInstagramToken(ctx context.Context, conn *models.Connection) error
}

type instagramService struct {
	cfg      config.Config
	cr       repository.ConnectionRepository
	client   *http.Client
	graphURL string
}

func NewInstagramService(cfg config.Config, cr repository.ConnectionRepository) InstagramService {
	return &instagramService{
		cfg:      cfg,
		cr:       cr,
		client:   &http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second},
		graphURL: instagramGraphURL,
	}
}

func (s *instagramService) Publish(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget, conn *models.Connection) models.PlatformResult {
	accessToken, err := utils.Decrypt(conn.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return failureResult("instagram connection %d has unusable credentials: %v", conn.ID, err)
	}

	imageURL := resolvePostImage(post, target)
	if imageURL == "" {
		return failureResult("instagram cannot publish without media: attach at least one image to the post")
	}

	account, errMsg := s.resolveAccount(ctx, accessToken)
	if errMsg != "" {
		return failureResult("instagram token check failed: %s", errMsg)
	}

	// Publishing over the API is a business-account feature. This is a
	// platform policy limit, not a transient fault: retrying can never
	// succeed until the account itself is switched.
	if !strings.EqualFold(account.AccountType, "business") {
		return failureResult("instagram account @%s is a %s account: the API only supports publishing to business accounts, so this post can never be published until the account is converted", account.Username, strings.ToLower(account.AccountType))
	}

	containerID, errMsg := s.createMediaContainer(ctx, account.ID, imageURL, buildCaption(post), accessToken)
	if errMsg != "" {
		return failureResult("instagram media container creation failed: %s", errMsg)
	}

	mediaID, errMsg := s.publishMediaContainer(ctx, account.ID, containerID, accessToken)
	if errMsg != "" {
		return failureResult("instagram media publish failed: %s", errMsg)
	}

	return successResult(s.fetchPermalink(ctx, mediaID, accessToken), mediaID)
}

func (s *instagramService) resolveAccount(ctx context.Context, accessToken string) (*transfer.InstagramAccount, string) {
	reqURL := fmt.Sprintf("%s/me?fields=id,username,account_type&access_token=%s", s.graphURL, url.QueryEscape(accessToken))

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

	var account transfer.InstagramAccount
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, err.Error()
	}
	return &account, ""
}

func (s *instagramService) createMediaContainer(ctx context.Context, accountID, imageURL, caption, accessToken string) (string, string) {
	payload := map[string]interface{}{
		"image_url":    imageURL,
		"caption":      caption,
		"access_token": accessToken,
	}

	id, errMsg := s.graphPost(ctx, fmt.Sprintf("%s/%s/media", s.graphURL, accountID), payload)
	if errMsg != "" {
		return "", errMsg
	}
	if id == "" {
		return "", "no container ID returned"
	}
	return id, ""
}

func (s *instagramService) publishMediaContainer(ctx context.Context, accountID, containerID, accessToken string) (string, string) {
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	id, errMsg := s.graphPost(ctx, fmt.Sprintf("%s/%s/media_publish", s.graphURL, accountID), payload)
	if errMsg != "" {
		return "", errMsg
	}
	if id == "" {
		return "", "no media ID returned"
	}
	return id, ""
}

func (s *instagramService) graphPost(ctx context.Context, reqURL string, payload map[string]interface{}) (string, string) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err.Error()
	}

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return "", err.Error()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", err.Error()
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err.Error()
	}

	if resp.StatusCode != http.StatusOK {
		return "", graphErrorMessage(respBody)
	}

	var result transfer.InstagramContainerResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err.Error()
	}
	return result.ID, ""
}

// fetchPermalink is best-effort: a published post without a permalink is
// still a success.
func (s *instagramService) fetchPermalink(ctx context.Context, mediaID, accessToken string) string {
	reqURL := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", s.graphURL, mediaID, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return ""
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var result transfer.InstagramPermalinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	return result.Permalink
}

// resolvePostImage picks media directly attached to the post or target.
// Unlike Facebook there is no article fallback chain: a post without its own
// media is a configuration error on Instagram.
func resolvePostImage(post *models.ScheduledPost, target models.PlatformTarget) string {
	if len(target.ImageURLs) > 0 {
		return target.ImageURLs[0]
	}
	if post.FeaturedImage != "" {
		return post.FeaturedImage
	}
	if len(post.ImageURLs) > 0 {
		return post.ImageURLs[0]
	}
	return ""
}

func (s *instagramService) RefreshInstagramToken(ctx context.Context, conn *models.Connection) error {
	refreshToken, err := utils.Decrypt(conn.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s", s.graphURL, url.QueryEscape(refreshToken))

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
		return fmt.Errorf("instagram token refresh returned status %d: %s", resp.StatusCode, graphErrorMessage(body))
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
