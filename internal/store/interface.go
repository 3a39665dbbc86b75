package store

import (
	"context"
	"time"
)

// KeyMetadata describes how a persisted deploy key came to be.
type KeyMetadata struct {
	Source     string    `json:"source"` // "generated", "manual" or "envFile"
	KeyName    string    `json:"key_name,omitempty"`
	ProjectID  int64     `json:"project_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// OAuthToken is the cached dashboard access token.
type OAuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	TeamID       string    `json:"team_id,omitempty"`
}

// Store is the persistent credential store backing the panel daemon. It holds
// one deploy key per deployment plus the cached OAuth token.
type Store interface {
	// Initialize sets up the storage backend
	Initialize(ctx context.Context) error

	// Close closes the storage backend
	Close() error

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error

	// Deploy key operations
	SaveDeploymentKey(ctx context.Context, deployment, key string, meta KeyMetadata) error
	LoadDeploymentKey(ctx context.Context, deployment string) (string, KeyMetadata, error)
	ClearDeploymentKey(ctx context.Context, deployment string) error
	ListDeployments(ctx context.Context) ([]string, error)
	MarkKeyUsed(ctx context.Context, deployment string, at time.Time) error

	// OAuth token operations
	SaveOAuthToken(ctx context.Context, tok OAuthToken) error
	LoadOAuthToken(ctx context.Context) (*OAuthToken, error)
	ClearOAuthToken(ctx context.Context) error
}

// ErrNotFound is returned when a key is not found
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
