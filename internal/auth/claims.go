package auth

import "time"

// Claims are the identity carried by an access token.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"id"`

	IssuedAt time.Time
	// ExpiresAt is nil for tokens issued without a lifetime.
	ExpiresAt *time.Time
}
