package deploykey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedKeys(t *testing.T) {
	for _, kind := range []string{"dev", "prod", "preview", "project"} {
		key := kind + ":my-app-123|abcDEF"
		assert.NoError(t, Validate(key, "my-app-123"), key)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		deployment string
	}{
		{"empty key", "", "my-app-123"},
		{"whitespace key", "   ", "my-app-123"},
		{"missing separator and kind", "nope", "my-app-123"},
		{"missing pipe", "dev:my-app-123", "my-app-123"},
		{"empty token", "dev:my-app-123|", "my-app-123"},
		{"empty segment", "dev:|tok", "my-app-123"},
		{"unknown kind", "staging:my-app-123|tok", "my-app-123"},
		{"wrong deployment", "dev:my-app-123|abcDEF", "other-app"},
		{"prefix only matches exactly", "dev:my-app|tok", "my-app-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.key, tt.deployment)
			require.Error(t, err)
		})
	}
}

func TestParseKey(t *testing.T) {
	kind, segment, token, err := ParseKey("preview:my-app-123|s3cret")
	require.NoError(t, err)
	assert.Equal(t, "preview", kind)
	assert.Equal(t, "my-app-123", segment)
	assert.Equal(t, "s3cret", token)

	_, _, _, err = ParseKey("preview:my-app-123")
	require.Error(t, err)
}

func TestKeyMatchesDeployment(t *testing.T) {
	assert.True(t, KeyMatchesDeployment("dev:my-app-123|tok", "my-app-123"))
	// Kind enum is deliberately not enforced here.
	assert.True(t, KeyMatchesDeployment("legacy:my-app-123|tok", "my-app-123"))
	assert.False(t, KeyMatchesDeployment("dev:my-app-123|tok", "other-app"))
	assert.False(t, KeyMatchesDeployment("dev:my-app-123", "my-app-123"))
	assert.False(t, KeyMatchesDeployment("", "my-app-123"))
	assert.False(t, KeyMatchesDeployment("dev:my-app-123|tok", ""))
}
