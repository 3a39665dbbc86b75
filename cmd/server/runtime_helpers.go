package main

import (
	"context"
	"fmt"
	"strings"

	"convexpanel-go/internal/config"
	"convexpanel-go/internal/store"

	log "github.com/sirupsen/logrus"
)

// buildStorage initializes the configured credential store. A failing redis
// backend degrades to the file store; a failing file store degrades to no
// persistence at all rather than refusing to start.
func buildStorage(ctx context.Context, cfg *config.Config) store.Store {
	s, err := newStore(ctx, cfg)
	if err == nil {
		return s
	}
	log.WithError(err).Warn("credential store initialization failed; attempting file store fallback")

	if !strings.EqualFold(cfg.StorageBackend, "file") {
		fb := store.NewFileStore(cfg.SecretsDir)
		if ferr := fb.Initialize(ctx); ferr == nil {
			log.WithField("fallback", "file").Info("using file credential store")
			return fb
		}
		log.WithError(err).Error("file store fallback failed")
	}

	log.Warn("running without persistent credential storage; keys will not survive restarts")
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	switch backend {
	case "", "file":
		fb := store.NewFileStore(cfg.SecretsDir)
		if err := fb.Initialize(ctx); err != nil {
			return nil, err
		}
		return fb, nil
	case "redis":
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		rb := store.NewRedisStore(addr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := rb.Initialize(ctx); err != nil {
			return nil, err
		}
		return rb, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}
