package deploykey

import (
	"fmt"
	"strings"
)

// Deploy keys have the shape <kind>:<deploymentName>|<token>.
var validKinds = map[string]struct{}{
	"dev":     {},
	"prod":    {},
	"preview": {},
	"project": {},
}

// ErrKeyMismatch is the default message when a held key belongs to a
// different deployment than the active one.
const ErrKeyMismatch = "deploy key does not match current deployment"

// noKeyMessage is the informational state shown before any key exists.
const noKeyMessage = "No deploy key set. Please create one in Settings or enter one manually."

// ParseKey splits a deploy key into kind, deployment segment and token.
func ParseKey(key string) (kind, segment, token string, err error) {
	kind, rest, ok := strings.Cut(key, ":")
	if !ok || kind == "" {
		return "", "", "", fmt.Errorf("deploy key must look like <kind>:<deployment>|<token>")
	}
	segment, token, ok = strings.Cut(rest, "|")
	if !ok || segment == "" || token == "" {
		return "", "", "", fmt.Errorf("deploy key must look like <kind>:<deployment>|<token>")
	}
	if _, known := validKinds[kind]; !known {
		return "", "", "", fmt.Errorf("unknown deploy key kind %q", kind)
	}
	return kind, segment, token, nil
}

// Validate checks that key is well formed and minted for deploymentName.
// A nil return means the key is acceptable for the deployment.
func Validate(key, deploymentName string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("deploy key is empty")
	}
	_, segment, _, err := ParseKey(key)
	if err != nil {
		return err
	}
	// A key minted for one deployment must never be accepted for another.
	if segment != deploymentName {
		return fmt.Errorf("deploy key is for deployment %q, not %q", segment, deploymentName)
	}
	return nil
}

// KeyMatchesDeployment reports whether the key's deployment segment names the
// given deployment. Unlike Validate it does not enforce the kind enum, so it
// also accepts entries written by older CLI versions.
func KeyMatchesDeployment(key, deploymentName string) bool {
	if key == "" || deploymentName == "" {
		return false
	}
	_, rest, ok := strings.Cut(key, ":")
	if !ok {
		return false
	}
	segment, _, ok := strings.Cut(rest, "|")
	return ok && segment == deploymentName
}
