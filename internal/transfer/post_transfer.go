package transfer

type TargetSpec struct {
	Platform     string   `json:"platform"`
	ConnectionID int64    `json:"connection_id"`
	ImageURLs    []string `json:"image_urls,omitempty"`
}

type PostCreation struct {
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	Excerpt       string       `json:"excerpt"`
	FeaturedImage string       `json:"featured_image"`
	ImageURLs     []string     `json:"image_urls"`
	ArticleID     int64        `json:"article_id"`
	Targets       []TargetSpec `json:"targets"`
	ScheduledTime string       `json:"scheduled_time"`
	MaxRetries    int          `json:"max_retries"`
}

// PostUpdate carries edits to a still-pending post. Empty fields are left
// unchanged.
type PostUpdate struct {
	PostID        int64    `json:"post_id"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Excerpt       string   `json:"excerpt"`
	FeaturedImage string   `json:"featured_image"`
	ImageURLs     []string `json:"image_urls"`
	ScheduledTime string   `json:"scheduled_time"`
}
