package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/draftly/publisher/internal/models"
)

type ArticleRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Article, error)
	ListImagesByArticleID(ctx context.Context, articleID int64) ([]*models.ArticleImage, error)
}

type articleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) ArticleRepository {
	return &articleRepository{db: db}
}

func (r *articleRepository) GetByID(ctx context.Context, id int64) (*models.Article, error) {
	query := `SELECT id, user_id, title, content, featured_image, image_urls, created_at FROM articles WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var article models.Article
	var imageURLs []byte
	err := row.Scan(&article.ID, &article.UserID, &article.Title, &article.Content, &article.FeaturedImage, &imageURLs, &article.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &article.ImageURLs); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
	}

	return &article, nil
}

func (r *articleRepository) ListImagesByArticleID(ctx context.Context, articleID int64) ([]*models.ArticleImage, error) {
	query := `SELECT id, article_id, file_name, file_url, display_order, created_at FROM article_images WHERE article_id = $1 ORDER BY display_order ASC`

	rows, err := r.db.QueryContext(ctx, query, articleID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var images []*models.ArticleImage
	for rows.Next() {
		var img models.ArticleImage
		err := rows.Scan(&img.ID, &img.ArticleID, &img.FileName, &img.FileURL, &img.DisplayOrder, &img.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		images = append(images, &img)
	}
	return images, nil
}
