package oauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"convexpanel-go/internal/store"

	log "github.com/sirupsen/logrus"
)

// Cache keeps the dashboard OAuth token in memory, backed by the credential
// store so it survives daemon restarts.
type Cache struct {
	store store.Store
	mu    sync.RWMutex
	tok   *Token
	now   func() time.Time
}

// NewCache constructs a token cache over the given store.
func NewCache(s store.Store) *Cache {
	return &Cache{store: s, now: time.Now}
}

// WithNowFunc overrides the clock used for expiry checks (testing).
func (c *Cache) WithNowFunc(now func() time.Time) *Cache {
	if now != nil {
		c.now = now
	}
	return c
}

// Load pulls the persisted token into memory. A missing token is not an error.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	tok, err := c.store.LoadOAuthToken(ctx)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("load oauth token: %w", err)
	}
	c.mu.Lock()
	c.tok = &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		TeamID:       tok.TeamID,
	}
	c.mu.Unlock()
	return nil
}

// Put stores a new token in memory and persists it.
func (c *Cache) Put(ctx context.Context, tok Token) error {
	c.mu.Lock()
	copied := tok
	c.tok = &copied
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.SaveOAuthToken(ctx, store.OAuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		TeamID:       tok.TeamID,
	})
	if err != nil {
		return fmt.Errorf("persist oauth token: %w", err)
	}
	return nil
}

// Get returns the cached token, or nil when none is held.
func (c *Cache) Get() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tok == nil {
		return nil
	}
	copied := *c.tok
	return &copied
}

// GetValidAccessToken returns the cached access token only when it has not
// expired. This is the deploy-key fallback lookup: in some account
// configurations the bearer token itself is accepted in place of a key.
func (c *Cache) GetValidAccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tok == nil || c.tok.IsExpired(c.now()) {
		return ""
	}
	return c.tok.AccessToken
}

// Clear drops the token from memory and from the store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.tok = nil
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.ClearOAuthToken(ctx); err != nil {
		log.WithError(err).Warn("failed to clear persisted oauth token")
		return err
	}
	return nil
}
