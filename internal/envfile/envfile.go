package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DeployKeyVar is the env file entry the Convex CLI reads the key from.
const DeployKeyVar = "CONVEX_DEPLOY_KEY"

// ReadDeployKey returns the deploy key entry from the env file at path, or
// "" when the file or the entry does not exist.
func ReadDeployKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) != DeployKeyVar {
			continue
		}
		return unquote(strings.TrimSpace(value)), nil
	}
	return "", nil
}

// WriteDeployKey sets the deploy key entry in the env file at path,
// preserving all unrelated lines. The file is created if absent.
func WriteDeployKey(path, deployKey string) error {
	var lines []string
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		lines = strings.Split(string(data), "\n")
		// Drop a single trailing empty line so we don't accumulate blanks.
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("read env file: %w", err)
	}

	entry := DeployKeyVar + "=" + deployKey
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, DeployKeyVar+"=") || strings.HasPrefix(trimmed, DeployKeyVar+" ") {
			lines[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, entry)
	}

	out := strings.Join(lines, "\n") + "\n"
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare project directory: %w", err)
	}
	if err := os.WriteFile(tmp, []byte(out), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename env file: %w", err)
	}
	return nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
