package transfer

type WordpressPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
	Status  string `json:"status"`
}

type WordpressPostResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}
