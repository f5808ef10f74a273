package models

import "time"

// Article is the generated source content a scheduled post may be derived
// from. Consumed read-only by the publishing engine.
type Article struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	Title         string    `db:"title" json:"title"`
	Content       string    `db:"content" json:"content"`
	FeaturedImage string    `db:"featured_image" json:"featured_image,omitempty"`
	ImageURLs     []string  `db:"image_urls" json:"image_urls,omitempty"` // legacy column, superseded by article_images
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type ArticleImage struct {
	ID           int64     `db:"id" json:"id"`
	ArticleID    int64     `db:"article_id" json:"article_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	FileURL      string    `db:"file_url" json:"file_url"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
