package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftly/publisher/internal/models"
)

type fakePostRepo struct {
	mu       sync.Mutex
	nextID   int64
	posts    map[int64]*models.ScheduledPost
	markErr  error
	finalErr error

	finalizeCalls int
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[int64]*models.ScheduledPost)}
}

func (r *fakePostRepo) add(post *models.ScheduledPost) *models.ScheduledPost {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post.ID == 0 {
		r.nextID++
		post.ID = r.nextID
	}
	r.posts[post.ID] = post
	return post
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	return r.add(post).ID, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts[id], nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var posts []*models.ScheduledPost
	for _, p := range r.posts {
		if p.UserID == userID {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (r *fakePostRepo) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.ScheduledPost
	for _, p := range r.posts {
		if p.Status == models.PostStatusPending && !p.ScheduledTime.After(now) {
			due = append(due, p)
		}
	}
	return due, nil
}

func (r *fakePostRepo) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return false, r.markErr
	}
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusPending {
		return false, nil
	}
	post.Status = models.PostStatusProcessing
	return true, nil
}

func (r *fakePostRepo) Finalize(ctx context.Context, post *models.ScheduledPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizeCalls++
	if r.finalErr != nil {
		return r.finalErr
	}
	r.posts[post.ID] = post
	return nil
}

func (r *fakePostRepo) Update(ctx context.Context, post *models.ScheduledPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[post.ID] = post
	return nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	return ok && post.UserID == userID, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

type fakeConnRepo struct {
	conns  map[int64]*models.Connection
	getErr error
}

func newFakeConnRepo(conns ...*models.Connection) *fakeConnRepo {
	r := &fakeConnRepo{conns: make(map[int64]*models.Connection)}
	for _, c := range conns {
		r.conns[c.ID] = c
	}
	return r
}

func (r *fakeConnRepo) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.conns[id], nil
}

func (r *fakeConnRepo) CheckByUserID(ctx context.Context, connectionID, userID int64) (bool, error) {
	conn, ok := r.conns[connectionID]
	return ok && conn.UserID == userID, nil
}

func (r *fakeConnRepo) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Connection, error) {
	return nil, nil
}

func (r *fakeConnRepo) SetToken(ctx context.Context, id int64, conn *models.Connection) error {
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	result models.PlatformResult
	calls  int
}

func (p *fakePublisher) Publish(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget, conn *models.Connection) models.PlatformResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func pendingPost(targets ...models.PlatformTarget) *models.ScheduledPost {
	return &models.ScheduledPost{
		UserID:        1,
		Title:         "Launch announcement",
		Content:       "<p>We shipped.</p>",
		Targets:       targets,
		ScheduledTime: time.Now().Add(-time.Minute),
		Status:        models.PostStatusPending,
	}
}

func activeConn(id int64, platform string) *models.Connection {
	return &models.Connection{ID: id, UserID: 1, Platform: platform, IsActive: true}
}

func TestProcessPostAllTargetsSucceed(t *testing.T) {
	repo := newFakePostRepo()
	post := repo.add(pendingPost(
		models.PlatformTarget{Platform: models.PlatformWordpress, ConnectionID: 1},
		models.PlatformTarget{Platform: models.PlatformFacebook, ConnectionID: 2},
	))
	conns := newFakeConnRepo(activeConn(1, models.PlatformWordpress), activeConn(2, models.PlatformFacebook))

	wp := &fakePublisher{result: models.PlatformResult{Success: true, URL: "https://blog.example.com/?p=9", PlatformPostID: "9"}}
	fb := &fakePublisher{result: models.PlatformResult{Success: true, URL: "https://www.facebook.com/123", PlatformPostID: "123"}}

	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{
		models.PlatformWordpress: wp,
		models.PlatformFacebook:  fb,
	})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusCompleted, processed.Status)
	require.Len(t, processed.Results, 2)
	assert.True(t, processed.Results[models.PlatformWordpress].Success)
	assert.True(t, processed.Results[models.PlatformFacebook].Success)
	assert.Equal(t, 1, wp.callCount())
	assert.Equal(t, 1, fb.callCount())
}

func TestProcessPostPartialFailureMarksFailed(t *testing.T) {
	repo := newFakePostRepo()
	post := repo.add(pendingPost(
		models.PlatformTarget{Platform: models.PlatformWordpress, ConnectionID: 1},
		models.PlatformTarget{Platform: models.PlatformFacebook, ConnectionID: 2},
	))
	conns := newFakeConnRepo(activeConn(1, models.PlatformWordpress), activeConn(2, models.PlatformFacebook))

	wp := &fakePublisher{result: models.PlatformResult{Success: true, URL: "https://blog.example.com/?p=9", PlatformPostID: "9"}}
	fb := &fakePublisher{result: models.PlatformResult{Success: false, Error: "invalid token"}}

	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{
		models.PlatformWordpress: wp,
		models.PlatformFacebook:  fb,
	})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusFailed, processed.Status)

	// The successful target's data is retained alongside the failure.
	require.Len(t, processed.Results, 2)
	assert.True(t, processed.Results[models.PlatformWordpress].Success)
	assert.Equal(t, "https://blog.example.com/?p=9", processed.Results[models.PlatformWordpress].URL)
	assert.False(t, processed.Results[models.PlatformFacebook].Success)
	assert.Equal(t, "invalid token", processed.Results[models.PlatformFacebook].Error)
}

func TestProcessPostFailureDoesNotSkipRemainingTargets(t *testing.T) {
	repo := newFakePostRepo()
	post := repo.add(pendingPost(
		models.PlatformTarget{Platform: models.PlatformFacebook, ConnectionID: 1},
		models.PlatformTarget{Platform: models.PlatformWordpress, ConnectionID: 2},
	))
	conns := newFakeConnRepo(activeConn(1, models.PlatformFacebook), activeConn(2, models.PlatformWordpress))

	fb := &fakePublisher{result: models.PlatformResult{Success: false, Error: "boom"}}
	wp := &fakePublisher{result: models.PlatformResult{Success: true, URL: "https://blog.example.com/?p=1"}}

	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{
		models.PlatformWordpress: wp,
		models.PlatformFacebook:  fb,
	})

	_, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, wp.callCount(), "second target must still be attempted after the first fails")
}

func TestProcessPostTerminalIdempotence(t *testing.T) {
	repo := newFakePostRepo()
	results := map[string]models.PlatformResult{
		models.PlatformWordpress: {Success: true, URL: "https://blog.example.com/?p=5"},
	}
	post := repo.add(&models.ScheduledPost{
		UserID:  1,
		Status:  models.PostStatusCompleted,
		Targets: []models.PlatformTarget{{Platform: models.PlatformWordpress, ConnectionID: 1}},
		Results: results,
	})
	conns := newFakeConnRepo(activeConn(1, models.PlatformWordpress))

	wp := &fakePublisher{result: models.PlatformResult{Success: true}}
	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{models.PlatformWordpress: wp})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusCompleted, processed.Status)
	assert.Equal(t, results, processed.Results)
	assert.Zero(t, wp.callCount(), "terminal posts must not trigger network calls")
	assert.Zero(t, repo.finalizeCalls)
}

func TestProcessPostOutcomeCompleteness(t *testing.T) {
	repo := newFakePostRepo()
	post := repo.add(pendingPost(
		models.PlatformTarget{Platform: models.PlatformWordpress, ConnectionID: 1},
		models.PlatformTarget{Platform: models.PlatformTwitter, ConnectionID: 99}, // no such connection
		models.PlatformTarget{Platform: models.PlatformInstagram, ConnectionID: 3},
	))
	conns := newFakeConnRepo(
		activeConn(1, models.PlatformWordpress),
		&models.Connection{ID: 3, UserID: 1, Platform: models.PlatformInstagram, IsActive: false},
	)

	wp := &fakePublisher{result: models.PlatformResult{Success: true}}
	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{models.PlatformWordpress: wp})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	// Every target listed on the post has an entry, success or error.
	require.Len(t, processed.Results, 3)
	assert.True(t, processed.Results[models.PlatformWordpress].Success)
	assert.Contains(t, processed.Results[models.PlatformTwitter].Error, "does not exist")
	assert.Contains(t, processed.Results[models.PlatformInstagram].Error, "disabled")
	assert.Equal(t, models.PostStatusFailed, processed.Status)
}

func TestProcessPostUnknownPlatformRecordsFailure(t *testing.T) {
	repo := newFakePostRepo()
	post := repo.add(pendingPost(models.PlatformTarget{Platform: models.PlatformLinkedin, ConnectionID: 1}))
	conns := newFakeConnRepo(activeConn(1, models.PlatformLinkedin))

	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusFailed, processed.Status)
	assert.Contains(t, processed.Results[models.PlatformLinkedin].Error, "no publisher registered")
}

func TestProcessPostRetrySchedulesBackoff(t *testing.T) {
	repo := newFakePostRepo()
	post := pendingPost(models.PlatformTarget{Platform: models.PlatformFacebook, ConnectionID: 1})
	post.MaxRetries = 2
	repo.add(post)
	conns := newFakeConnRepo(activeConn(1, models.PlatformFacebook))

	fb := &fakePublisher{result: models.PlatformResult{Success: false, Error: "timeout"}}
	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{models.PlatformFacebook: fb})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPending, processed.Status)
	assert.Equal(t, 1, processed.RetryCount)
	assert.True(t, processed.ScheduledTime.After(time.Now()), "retry must be backoff-delayed")
	require.Len(t, processed.ErrorLog, 1)
}

func TestProcessPostRetryExhaustionFinalizesFailed(t *testing.T) {
	repo := newFakePostRepo()
	post := pendingPost(models.PlatformTarget{Platform: models.PlatformFacebook, ConnectionID: 1})
	post.MaxRetries = 1
	post.RetryCount = 1
	repo.add(post)
	conns := newFakeConnRepo(activeConn(1, models.PlatformFacebook))

	fb := &fakePublisher{result: models.PlatformResult{Success: false, Error: "timeout"}}
	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{models.PlatformFacebook: fb})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusFailed, processed.Status)
	assert.Equal(t, 1, processed.RetryCount)
}

func TestProcessPostRepositoryErrorForcesFailed(t *testing.T) {
	repo := newFakePostRepo()
	post := repo.add(pendingPost(models.PlatformTarget{Platform: models.PlatformWordpress, ConnectionID: 1}))
	repo.markErr = errors.New("connection refused")
	conns := newFakeConnRepo(activeConn(1, models.PlatformWordpress))

	wp := &fakePublisher{result: models.PlatformResult{Success: true}}
	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{models.PlatformWordpress: wp})

	processed, err := svc.ProcessPost(context.Background(), post.ID)
	require.Error(t, err)

	// The post must never be left in processing.
	assert.Equal(t, models.PostStatusFailed, processed.Status)
	require.NotEmpty(t, processed.ErrorLog)
	assert.Contains(t, processed.ErrorLog[0].Error, "connection refused")
	assert.Zero(t, wp.callCount())
}

func TestProcessPostLostCompareAndSwapSkips(t *testing.T) {
	repo := newFakePostRepo()
	post := pendingPost(models.PlatformTarget{Platform: models.PlatformWordpress, ConnectionID: 1})
	post.Status = models.PostStatusProcessing
	repo.add(post)
	conns := newFakeConnRepo(activeConn(1, models.PlatformWordpress))

	wp := &fakePublisher{result: models.PlatformResult{Success: true}}
	svc := NewPublishService(repo, conns, map[string]PlatformPublisher{models.PlatformWordpress: wp})

	_, err := svc.ProcessPost(context.Background(), post.ID)
	require.NoError(t, err)

	assert.Zero(t, wp.callCount(), "a post owned by another invocation must not be re-published")
}
