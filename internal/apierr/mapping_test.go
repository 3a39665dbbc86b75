package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"unauthorized with envelope", 401, `{"error":{"message":"token expired"}}`, "invalid_token", "token expired"},
		{"flat message", 404, `{"code":"DeploymentNotFound","message":"no such deployment"}`, "not_found", "no such deployment"},
		{"empty body falls back", 403, "", "permission_denied", "Permission denied"},
		{"unknown status", 418, "", "unknown_error", "HTTP 418 error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := MapHTTPError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, apiErr.HTTPStatus)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestMapNetworkError(t *testing.T) {
	apiErr := MapNetworkError(errors.New("context deadline exceeded"))
	assert.Equal(t, http.StatusGatewayTimeout, apiErr.HTTPStatus)
	assert.Equal(t, "timeout", apiErr.Code)

	apiErr = MapNetworkError(errors.New("dial tcp 127.0.0.1:80: connection refused"))
	assert.Equal(t, "connection_error", apiErr.Code)

	apiErr = MapNetworkError(errors.New("something odd"))
	assert.Equal(t, "network_error", apiErr.Code)
}

func TestEnvelopeShape(t *testing.T) {
	apiErr := New(401, "invalid_token", "authentication_error", "nope")
	env := apiErr.Envelope()
	inner, ok := env["error"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "nope", inner["message"])
	assert.Equal(t, "invalid_token", inner["code"])
}
