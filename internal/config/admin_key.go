package config

import "golang.org/x/crypto/bcrypt"

// CheckAdminKey verifies whether the provided key matches the configured panel credential.
func CheckAdminKey(cfg *Config, candidate string) bool {
	if cfg == nil || candidate == "" {
		return false
	}
	if cfg.AdminKey != "" && candidate == cfg.AdminKey {
		return true
	}
	if cfg.AdminKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.AdminKeyHash), []byte(candidate)); err == nil {
			return true
		}
	}
	return false
}

// AdminKeyValidator returns a closure suitable for middleware validation.
func AdminKeyValidator(cfg *Config) func(string) bool {
	return func(candidate string) bool {
		return CheckAdminKey(cfg, candidate)
	}
}
