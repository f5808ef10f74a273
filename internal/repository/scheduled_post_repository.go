package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/draftly/publisher/internal/models"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)
	MarkProcessing(ctx context.Context, id int64) (bool, error)
	Finalize(ctx context.Context, post *models.ScheduledPost) error
	Update(ctx context.Context, post *models.ScheduledPost) error
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const postColumns = `id, user_id, article_id, title, content, excerpt, featured_image, image_urls, targets, scheduled_time, status, results, error_log, retry_count, max_retries, created_at, updated_at`

func (r *scheduledPostRepository) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts (user_id, article_id, title, content, excerpt, featured_image, image_urls, targets, scheduled_time, status, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	imageURLs, err := json.Marshal(post.ImageURLs)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	targets, err := json.Marshal(post.Targets)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	args := []any{post.UserID, post.ArticleID, post.Title, post.Content, post.Excerpt, post.FeaturedImage, imageURLs, targets, post.ScheduledTime, post.Status, post.MaxRetries}

	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *scheduledPostRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE user_id = $1 ORDER BY scheduled_time DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListDue returns pending posts whose scheduled time has passed, in arrival
// order of their due time.
func (r *scheduledPostRepository) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE status = $1 AND scheduled_time <= $2 ORDER BY scheduled_time ASC`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPending, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// MarkProcessing flips a pending post to processing. The WHERE clause on
// status makes this a compare-and-swap: if the poll loop and the queue race
// on the same post, exactly one caller sees true.
func (r *scheduledPostRepository) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query, models.PostStatusProcessing, time.Now(), id, models.PostStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return n == 1, nil
}

// Finalize persists the outcome of one processing pass: status, outcome map,
// error log and the retry bookkeeping, in a single update.
func (r *scheduledPostRepository) Finalize(ctx context.Context, post *models.ScheduledPost) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
			results = $2,
			error_log = $3,
			retry_count = $4,
			scheduled_time = $5,
			updated_at = $6
		WHERE id = $7
	`

	results, err := json.Marshal(post.Results)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	errorLog, err := json.Marshal(post.ErrorLog)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	_, err = r.db.ExecContext(ctx, query, post.Status, results, errorLog, post.RetryCount, post.ScheduledTime, time.Now(), post.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) Update(ctx context.Context, post *models.ScheduledPost) error {
	query := `
		UPDATE scheduled_posts
		SET title = $1,
			content = $2,
			excerpt = $3,
			featured_image = $4,
			image_urls = $5,
			scheduled_time = $6,
			status = $7,
			updated_at = $8
		WHERE id = $9
	`

	imageURLs, err := json.Marshal(post.ImageURLs)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	_, err = r.db.ExecContext(ctx, query, post.Title, post.Content, post.Excerpt, post.FeaturedImage, imageURLs, post.ScheduledTime, post.Status, time.Now(), post.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := `SELECT 1 FROM scheduled_posts WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *scheduledPostRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM scheduled_posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	var imageURLs, targets, results, errorLog []byte

	err := row.Scan(&post.ID, &post.UserID, &post.ArticleID, &post.Title, &post.Content, &post.Excerpt, &post.FeaturedImage,
		&imageURLs, &targets, &post.ScheduledTime, &post.Status, &results, &errorLog,
		&post.RetryCount, &post.MaxRetries, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &post.ImageURLs); err != nil {
			return nil, err
		}
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &post.Targets); err != nil {
			return nil, err
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &post.Results); err != nil {
			return nil, err
		}
	}
	if len(errorLog) > 0 {
		if err := json.Unmarshal(errorLog, &post.ErrorLog); err != nil {
			return nil, err
		}
	}

	return &post, nil
}

func collectPosts(rows *sql.Rows) ([]*models.ScheduledPost, error) {
	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}
