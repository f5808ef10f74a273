package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	config "github.com/draftly/publisher/configs"
	"github.com/draftly/publisher/internal/models"
	"github.com/draftly/publisher/internal/transfer"
)

type WordpressService interface {
	PlatformPublisher
}

type wordpressService struct {
	cfg    config.Config
	client *http.Client
}

func NewWordpressService(cfg config.Config) WordpressService {
	return &wordpressService{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second},
	}
}

func (s *wordpressService) Publish(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget, conn *models.Connection) models.PlatformResult {
	siteURL := strings.TrimRight(conn.Settings["site_url"], "/")
	if siteURL == "" {
		return failureResult("wordpress connection %d has no site_url configured", conn.ID)
	}

	username := conn.Settings["username"]
	if username == "" {
		return failureResult("wordpress connection %d has no username configured", conn.ID)
	}

	// Application passwords are rendered with visual spacing ("xxxx xxxx ...");
	// the API wants them without it.
	password := strings.ReplaceAll(conn.Settings["app_password"], " ", "")
	if password == "" {
		password = conn.Settings["password"]
	}
	if password == "" {
		return failureResult("wordpress connection %d has no application password or password configured", conn.ID)
	}

	payload := transfer.WordpressPostRequest{
		Title:   post.Title,
		Content: post.Content,
		Excerpt: post.Excerpt,
		Status:  "publish",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failureResult("error marshalling wordpress payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", siteURL+"/wp-json/wp/v2/posts", bytes.NewBuffer(body))
	if err != nil {
		return failureResult("error creating wordpress request: %v", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failureResult("wordpress request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failureResult("error reading wordpress response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failureResult("wordpress returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var created transfer.WordpressPostResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return failureResult("error parsing wordpress response: %v", err)
	}

	return successResult(created.Link, strconv.FormatInt(created.ID, 10))
}
