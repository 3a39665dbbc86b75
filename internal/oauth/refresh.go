package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a fresh access token against the
// Convex auth service.
type Refresher struct {
	clientID   string
	endpoint   oauth2.Endpoint
	httpClient *http.Client
}

// NewRefresher constructs a refresher for the given auth service base URL.
func NewRefresher(authURL, clientID string) *Refresher {
	return &Refresher{
		clientID: clientID,
		endpoint: oauth2.Endpoint{
			AuthURL:  authURL + "/oauth/authorize",
			TokenURL: authURL + "/oauth/token",
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient overrides the HTTP client used for the token exchange.
func (r *Refresher) WithHTTPClient(client *http.Client) *Refresher {
	if client != nil {
		r.httpClient = client
	}
	return r
}

// Refresh returns a renewed token. The input token is not mutated.
func (r *Refresher) Refresh(ctx context.Context, tok Token) (Token, error) {
	if tok.RefreshToken == "" {
		return Token{}, fmt.Errorf("no refresh token available")
	}

	conf := &oauth2.Config{
		ClientID: r.clientID,
		Endpoint: r.endpoint,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	src := conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute), // force refresh
	})
	renewed, err := src.Token()
	if err != nil {
		return Token{}, fmt.Errorf("refresh token: %w", err)
	}

	out := Token{
		AccessToken:  renewed.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    renewed.Expiry,
		TeamID:       tok.TeamID,
	}
	if renewed.RefreshToken != "" {
		out.RefreshToken = renewed.RefreshToken
	}
	log.WithField("team_id", tok.TeamID).Info("oauth token refreshed")
	return out, nil
}
