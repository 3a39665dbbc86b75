package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of Redis. It exists for setups where
// several panel instances share one credential store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed credential store.
func NewRedisStore(addr, password string, db int, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "convexpanel:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreWithClient wraps an existing client (used in tests).
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "convexpanel:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) keyFor(deployment string) string {
	return r.prefix + "deploykey:" + deployment
}

func (r *RedisStore) oauthKey() string {
	return r.prefix + "oauth-token"
}

func (r *RedisStore) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisStore) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) SaveDeploymentKey(ctx context.Context, deployment, key string, meta KeyMetadata) error {
	if deployment == "" {
		return fmt.Errorf("deployment name is required")
	}
	payload, err := encodeKeyRecord(deployment, key, meta)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.keyFor(deployment), payload, 0).Err()
}

func (r *RedisStore) LoadDeploymentKey(ctx context.Context, deployment string) (string, KeyMetadata, error) {
	data, err := r.client.Get(ctx, r.keyFor(deployment)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return "", KeyMetadata{}, &ErrNotFound{Key: deployment}
		}
		return "", KeyMetadata{}, err
	}
	rec, err := decodeKeyRecord(data)
	if err != nil {
		return "", KeyMetadata{}, err
	}
	return rec.Key, rec.Metadata, nil
}

func (r *RedisStore) ClearDeploymentKey(ctx context.Context, deployment string) error {
	return r.client.Del(ctx, r.keyFor(deployment)).Err()
}

func (r *RedisStore) ListDeployments(ctx context.Context) ([]string, error) {
	pattern := r.prefix + "deploykey:*"
	var names []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.prefix+"deploykey:"))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan deploy keys: %w", err)
	}
	return names, nil
}

func (r *RedisStore) MarkKeyUsed(ctx context.Context, deployment string, at time.Time) error {
	key := r.keyFor(deployment)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &ErrNotFound{Key: deployment}
		}
		return err
	}
	updated, err := touchKeyRecord(data, at)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, updated, 0).Err()
}

func (r *RedisStore) SaveOAuthToken(ctx context.Context, tok OAuthToken) error {
	payload, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal oauth token: %w", err)
	}
	return r.client.Set(ctx, r.oauthKey(), payload, 0).Err()
}

func (r *RedisStore) LoadOAuthToken(ctx context.Context) (*OAuthToken, error) {
	data, err := r.client.Get(ctx, r.oauthKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, &ErrNotFound{Key: "oauth-token"}
		}
		return nil, err
	}
	var tok OAuthToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

func (r *RedisStore) ClearOAuthToken(ctx context.Context) error {
	return r.client.Del(ctx, r.oauthKey()).Err()
}
