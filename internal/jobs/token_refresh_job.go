package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/draftly/publisher/internal/models"
	"github.com/draftly/publisher/internal/repository"
	"github.com/draftly/publisher/internal/service"
)

// TokenRefreshJob keeps graph tokens alive: every run it picks the active
// connections expiring within the next half hour and refreshes them.
type TokenRefreshJob struct {
	cr repository.ConnectionRepository
	fb service.FacebookService
	ig service.InstagramService
}

func NewTokenRefreshJob(
	cr repository.ConnectionRepository,
	fb service.FacebookService,
	ig service.InstagramService) *TokenRefreshJob {
	return &TokenRefreshJob{
		cr: cr,
		fb: fb,
		ig: ig,
	}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	connections, err := j.cr.ListExpiring(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, conn := range connections {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.Connection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			switch conn.Platform {
			case models.PlatformFacebook:
				if err := j.fb.RefreshFacebookToken(ctx, conn); err != nil {
					slog.Info("Unable to refresh token for Facebook connection")
				}
			case models.PlatformInstagram:
				if err := j.ig.RefreshInstagramToken(ctx, conn); err != nil {
					slog.Info("Unable to refresh token for Instagram connection")
				}
			}
		}(conn)
	}

	wg.Wait()
}
