package transfer

// GraphIdentity is the response of the /me probe on the Facebook graph.
type GraphIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GraphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type FacebookPhotoResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type FacebookFeedResponse struct {
	ID string `json:"id"`
}

type InstagramAccount struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	AccountType string `json:"account_type"`
}

type InstagramContainerResponse struct {
	ID string `json:"id"`
}

type InstagramPermalinkResponse struct {
	Permalink string `json:"permalink"`
}

type GraphTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
