package models

import "time"

type ScheduledPost struct {
	ID            int64                     `db:"id" json:"id"`
	UserID        int64                     `db:"user_id" json:"user_id"`
	ArticleID     int64                     `db:"article_id" json:"article_id,omitempty"`
	Title         string                    `db:"title" json:"title"`
	Content       string                    `db:"content" json:"content"`
	Excerpt       string                    `db:"excerpt" json:"excerpt,omitempty"`
	FeaturedImage string                    `db:"featured_image" json:"featured_image,omitempty"`
	ImageURLs     []string                  `db:"image_urls" json:"image_urls,omitempty"`
	Targets       []PlatformTarget          `db:"targets" json:"targets"`
	ScheduledTime time.Time                 `db:"scheduled_time" json:"scheduled_time"`
	Status        string                    `db:"status" json:"status"` // pending, processing, completed, failed
	Results       map[string]PlatformResult `db:"results" json:"results,omitempty"`
	ErrorLog      []ErrorLogEntry           `db:"error_log" json:"error_log,omitempty"`
	RetryCount    int                       `db:"retry_count" json:"retry_count"`
	MaxRetries    int                       `db:"max_retries" json:"max_retries"`
	CreatedAt     time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                 `db:"updated_at" json:"updated_at"`
}

// PlatformTarget is one publishing destination attached to a post.
type PlatformTarget struct {
	Platform     string   `json:"platform"`
	ConnectionID int64    `json:"connection_id"`
	ImageURLs    []string `json:"image_urls,omitempty"`
}

// PlatformResult is the durable record of one platform attempt.
type PlatformResult struct {
	Success        bool   `json:"success"`
	URL            string `json:"url,omitempty"`
	PlatformPostID string `json:"platform_post_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type ErrorLogEntry struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	PostStatusPending    = "pending"
	PostStatusProcessing = "processing"
	PostStatusCompleted  = "completed"
	PostStatusFailed     = "failed"
)

const (
	PlatformWordpress = "wordpress"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTwitter   = "twitter"
	PlatformLinkedin  = "linkedin"
)

// IsTerminal reports whether the post has reached a final status and must
// never be re-processed by the poll cycle.
func (p *ScheduledPost) IsTerminal() bool {
	return p.Status == PostStatusCompleted || p.Status == PostStatusFailed
}

func KnownPlatform(platform string) bool {
	switch platform {
	case PlatformWordpress, PlatformFacebook, PlatformInstagram, PlatformTwitter, PlatformLinkedin:
		return true
	}
	return false
}
