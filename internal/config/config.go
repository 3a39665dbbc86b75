package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the daemon configuration loaded from file plus env overrides.
type Config struct {
	// Server settings
	Port     int    `yaml:"port" json:"port"`
	BindAddr string `yaml:"bind_addr" json:"bind_addr"`
	Debug    bool   `yaml:"debug" json:"debug"`
	LogFile  string `yaml:"log_file" json:"log_file"`

	// Panel API auth
	AdminKey     string `yaml:"admin_key" json:"admin_key"`
	AdminKeyHash string `yaml:"admin_key_hash" json:"admin_key_hash"`
	PanelOrigin  string `yaml:"panel_origin" json:"panel_origin"`

	// Dashboard API
	DashboardURL string `yaml:"dashboard_url" json:"dashboard_url"`
	AuthURL      string `yaml:"auth_url" json:"auth_url"`
	ClientID     string `yaml:"oauth_client_id" json:"oauth_client_id"`

	// Credential storage
	StorageBackend string `yaml:"storage_backend" json:"storage_backend"` // "file" or "redis"
	SecretsDir     string `yaml:"secrets_dir" json:"secrets_dir"`
	RedisAddr      string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword  string `yaml:"redis_password" json:"redis_password"`
	RedisDB        int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix" json:"redis_prefix"`

	// Project integration
	ProjectDir  string `yaml:"project_dir" json:"project_dir"`
	EnvFileName string `yaml:"env_file_name" json:"env_file_name"`

	// Rate limiting for the local API
	RateLimitRPS   int `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// Defaults returns a config populated with sensible local-daemon defaults.
func Defaults() *Config {
	return &Config{
		Port:           7491,
		BindAddr:       "127.0.0.1",
		DashboardURL:   "https://api.convex.dev",
		AuthURL:        "https://auth.convex.dev",
		StorageBackend: "file",
		SecretsDir:     "~/.convex-panel/secrets",
		EnvFileName:    ".env.local",
		RateLimitRPS:   20,
		RateLimitBurst: 40,
	}
}

// applyEnvOverrides maps CONVEX_PANEL_* environment variables over the file config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONVEX_PANEL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Port = port
		}
	}
	if v := os.Getenv("CONVEX_PANEL_BIND_ADDR"); v != "" {
		c.BindAddr = v
	}
	if v := os.Getenv("CONVEX_PANEL_DEBUG"); v != "" {
		c.Debug = isTruthy(v)
	}
	if v := os.Getenv("CONVEX_PANEL_ADMIN_KEY"); v != "" {
		c.AdminKey = v
	}
	if v := os.Getenv("CONVEX_PANEL_ADMIN_KEY_HASH"); v != "" {
		c.AdminKeyHash = v
	}
	if v := os.Getenv("CONVEX_PANEL_DASHBOARD_URL"); v != "" {
		c.DashboardURL = v
	}
	if v := os.Getenv("CONVEX_PANEL_AUTH_URL"); v != "" {
		c.AuthURL = v
	}
	if v := os.Getenv("CONVEX_PANEL_STORAGE_BACKEND"); v != "" {
		c.StorageBackend = v
	}
	if v := os.Getenv("CONVEX_PANEL_SECRETS_DIR"); v != "" {
		c.SecretsDir = v
	}
	if v := os.Getenv("CONVEX_PANEL_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("CONVEX_PANEL_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("CONVEX_PANEL_PROJECT_DIR"); v != "" {
		c.ProjectDir = v
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// ValidateAndExpandPaths expands ~ in path settings and checks consistency.
func (c *Config) ValidateAndExpandPaths() error {
	expanded, err := expandHome(c.SecretsDir)
	if err != nil {
		return fmt.Errorf("secrets_dir: %w", err)
	}
	c.SecretsDir = expanded

	if c.ProjectDir != "" {
		expanded, err = expandHome(c.ProjectDir)
		if err != nil {
			return fmt.Errorf("project_dir: %w", err)
		}
		c.ProjectDir = expanded
	}

	switch c.StorageBackend {
	case "", "file":
		c.StorageBackend = "file"
		if c.SecretsDir == "" {
			return fmt.Errorf("secrets_dir is required for the file storage backend")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis storage backend")
		}
	default:
		return fmt.Errorf("unsupported storage_backend %q", c.StorageBackend)
	}

	if c.EnvFileName == "" {
		c.EnvFileName = ".env.local"
	}
	return nil
}

// EnvFilePath returns the absolute path of the project env file, or "" when
// no project directory is configured.
func (c *Config) EnvFilePath() string {
	if c.ProjectDir == "" {
		return ""
	}
	return filepath.Join(c.ProjectDir, c.EnvFileName)
}

func expandHome(path string) (string, error) {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
