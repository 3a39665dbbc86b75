package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from path (YAML or JSON), falling back to defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := parseInto(cfg, path, data); err != nil {
				return nil, err
			}
			log.WithField("path", path).Info("configuration loaded")
		case os.IsNotExist(err):
			log.WithField("path", path).Debug("config file not found, using defaults")
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func parseInto(cfg *Config, path string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("failed to parse config file (tried YAML and JSON)")
			}
		}
	}
	return nil
}
