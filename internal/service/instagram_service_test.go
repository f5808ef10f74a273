package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/draftly/publisher/configs"
	"github.com/draftly/publisher/internal/models"
)

func instagramConn(t *testing.T) *models.Connection {
	return &models.Connection{
		ID:          3,
		UserID:      1,
		Platform:    models.PlatformInstagram,
		AccessToken: encryptToken(t, "ig-token"),
		IsActive:    true,
	}
}

func newTestInstagramService(graphURL string) *instagramService {
	cfg := config.Config{SecretKey: testSecretKey, HTTPTimeout: 5}
	svc := NewInstagramService(cfg, newFakeConnRepo()).(*instagramService)
	svc.graphURL = graphURL
	return svc
}

func instagramPost() *models.ScheduledPost {
	post := pendingPost(models.PlatformTarget{Platform: models.PlatformInstagram, ConnectionID: 3})
	post.FeaturedImage = "https://cdn.example.com/cover.jpg"
	return post
}

func TestInstagramPersonalAccountRejected(t *testing.T) {
	var containerCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"456","username":"casual_user","account_type":"PERSONAL"}`))
	})
	mux.HandleFunc("/456/media", func(w http.ResponseWriter, r *http.Request) {
		containerCalls++
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestInstagramService(server.URL)

	result := svc.Publish(context.Background(), instagramPost(), models.PlatformTarget{Platform: models.PlatformInstagram, ConnectionID: 3}, instagramConn(t))

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "business account")
	assert.Contains(t, result.Error, "can never be published", "policy errors must read as permanent, not transient")
	assert.Zero(t, containerCalls, "a personal account must fail before any container creation")
}

func TestInstagramBusinessPublish(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"456","username":"brand_account","account_type":"BUSINESS"}`))
	})
	mux.HandleFunc("/456/media", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"container-1"}`))
	})
	mux.HandleFunc("/456/media_publish", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"media-9"}`))
	})
	mux.HandleFunc("/media-9", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"permalink":"https://www.instagram.com/p/XYZ123/"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestInstagramService(server.URL)

	result := svc.Publish(context.Background(), instagramPost(), models.PlatformTarget{Platform: models.PlatformInstagram, ConnectionID: 3}, instagramConn(t))

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "media-9", result.PlatformPostID)
	assert.Equal(t, "https://www.instagram.com/p/XYZ123/", result.URL)
}

func TestInstagramRequiresImage(t *testing.T) {
	var httpCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpCalls++
	}))
	defer server.Close()

	svc := newTestInstagramService(server.URL)
	post := pendingPost(models.PlatformTarget{Platform: models.PlatformInstagram, ConnectionID: 3})

	result := svc.Publish(context.Background(), post, post.Targets[0], instagramConn(t))

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "without media")
	assert.Zero(t, httpCalls, "a post without media must fail before any network call")
}

func TestInstagramContainerCreationFailureAbortsPublish(t *testing.T) {
	var publishCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"456","username":"brand_account","account_type":"BUSINESS"}`))
	})
	mux.HandleFunc("/456/media", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Media upload has failed with error code 2207026"}}`))
	})
	mux.HandleFunc("/456/media_publish", func(w http.ResponseWriter, r *http.Request) {
		publishCalls++
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestInstagramService(server.URL)

	result := svc.Publish(context.Background(), instagramPost(), models.PlatformTarget{Platform: models.PlatformInstagram, ConnectionID: 3}, instagramConn(t))

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "2207026")
	assert.Zero(t, publishCalls, "a failed container must abort the publish phase")
}

func TestStubPublisherReportsNotImplemented(t *testing.T) {
	stub := NewStubPublisher(models.PlatformTwitter)

	result := stub.Publish(context.Background(), pendingPost(), models.PlatformTarget{Platform: models.PlatformTwitter}, &models.Connection{})

	require.False(t, result.Success, "a stub must never fabricate success")
	assert.Contains(t, result.Error, "not implemented")
}
