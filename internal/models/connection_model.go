package models

import "time"

// Connection holds the credentials needed to act on a user's behalf on one
// external platform. CMS connections carry url/username/password style
// settings; social connections carry an encrypted access token.
type Connection struct {
	ID              int64             `db:"id" json:"id"`
	UserID          int64             `db:"user_id" json:"user_id"`
	Platform        string            `db:"platform" json:"platform"`
	AccountName     string            `db:"account_name" json:"account_name"`
	AccountUsername string            `db:"account_username" json:"account_username"`
	Settings        map[string]string `db:"settings" json:"settings"`
	AccessToken     string            `db:"access_token" json:"-"`
	RefreshToken    string            `db:"refresh_token" json:"-"`
	TokenExpiresAt  time.Time         `db:"token_expires_at" json:"token_expires_at"`
	IsActive        bool              `db:"is_active" json:"is_active"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}
