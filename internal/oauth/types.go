package oauth

import (
	"time"

	"convexpanel-go/internal/constants"
)

// Token is a dashboard OAuth access token cached by the daemon. It is
// obtained by the panel's browser flow and handed to the daemon for storage.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	TeamID       string    `json:"team_id,omitempty"`
}

// IsExpired checks if the access token is expired.
// Tokens inside the skew window count as expired so callers never hand out
// a token that dies mid-request.
func (t *Token) IsExpired(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(constants.OAuthExpirySkew).After(t.ExpiresAt)
}
