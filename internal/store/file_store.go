package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	keyFilePrefix  = "deploy-"
	keyFileSuffix  = ".json"
	oauthTokenFile = "oauth-token.json"
)

// FileStore persists credentials as JSON files in a local secrets directory.
type FileStore struct {
	dir string
}

// NewFileStore constructs a file-backed store. dir should be an absolute path.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: filepath.Clean(dir)}
}

// Dir returns the secrets directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Initialize(_ context.Context) error {
	if s.dir == "" {
		return fmt.Errorf("secrets directory not configured")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("prepare secrets directory: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) Health(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("secrets directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("secrets path %s is not a directory", s.dir)
	}
	return nil
}

func (s *FileStore) keyPath(deployment string) string {
	return filepath.Join(s.dir, keyFilePrefix+deployment+keyFileSuffix)
}

func (s *FileStore) SaveDeploymentKey(_ context.Context, deployment, key string, meta KeyMetadata) error {
	if deployment == "" {
		return fmt.Errorf("deployment name is required")
	}
	data, err := encodeKeyRecord(deployment, key, meta)
	if err != nil {
		return err
	}
	return s.writeAtomic(s.keyPath(deployment), data)
}

func (s *FileStore) LoadDeploymentKey(_ context.Context, deployment string) (string, KeyMetadata, error) {
	data, err := os.ReadFile(s.keyPath(deployment))
	if err != nil {
		if os.IsNotExist(err) {
			return "", KeyMetadata{}, &ErrNotFound{Key: deployment}
		}
		return "", KeyMetadata{}, fmt.Errorf("read key record %s: %w", deployment, err)
	}
	rec, err := decodeKeyRecord(data)
	if err != nil {
		return "", KeyMetadata{}, err
	}
	return rec.Key, rec.Metadata, nil
}

func (s *FileStore) ClearDeploymentKey(_ context.Context, deployment string) error {
	if err := os.Remove(s.keyPath(deployment)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete key record %s: %w", deployment, err)
	}
	return nil
}

func (s *FileStore) ListDeployments(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read secrets directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, keyFilePrefix) || !strings.HasSuffix(name, keyFileSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(name, keyFilePrefix), keyFileSuffix))
	}
	return names, nil
}

func (s *FileStore) MarkKeyUsed(_ context.Context, deployment string, at time.Time) error {
	path := s.keyPath(deployment)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ErrNotFound{Key: deployment}
		}
		return fmt.Errorf("read key record %s: %w", deployment, err)
	}
	updated, err := touchKeyRecord(data, at)
	if err != nil {
		return err
	}
	return s.writeAtomic(path, updated)
}

func (s *FileStore) SaveOAuthToken(_ context.Context, tok OAuthToken) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal oauth token: %w", err)
	}
	return s.writeAtomic(filepath.Join(s.dir, oauthTokenFile), data)
}

func (s *FileStore) LoadOAuthToken(_ context.Context) (*OAuthToken, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, oauthTokenFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{Key: "oauth-token"}
		}
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok OAuthToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

func (s *FileStore) ClearOAuthToken(_ context.Context) error {
	if err := os.Remove(filepath.Join(s.dir, oauthTokenFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete oauth token: %w", err)
	}
	return nil
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("prepare secrets directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	log.WithField("path", path).Debug("secret written")
	return nil
}
