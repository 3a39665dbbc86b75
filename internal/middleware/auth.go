package middleware

import (
	"net/http"
	"strings"

	"convexpanel-go/internal/apierr"
	"github.com/gin-gonic/gin"
)

// AuthConfig holds panel authentication configuration.
type AuthConfig struct {
	// Validator checks a presented admin key; nil disables auth entirely,
	// which is the default for a loopback-only daemon.
	Validator func(key string) bool
	// AllowQueryKey also accepts ?key=<token>. WebSocket clients cannot set
	// an Authorization header, so the event stream route needs it.
	AllowQueryKey bool
}

// AdminAuth guards the panel API with the configured admin key. Accepted
// sources: Authorization: Bearer <key>, X-Admin-Key header, and optionally a
// ?key= query parameter.
func AdminAuth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Validator == nil {
			c.Next()
			return
		}

		var providedKey string

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				providedKey = strings.TrimSpace(authHeader[7:])
			} else {
				providedKey = authHeader
			}
		}

		if providedKey == "" {
			providedKey = c.GetHeader("X-Admin-Key")
		}

		if providedKey == "" && cfg.AllowQueryKey {
			providedKey = c.Query("key")
		}

		if providedKey == "" {
			respondUnauthorized(c, "Admin key not provided")
			return
		}
		if !cfg.Validator(providedKey) {
			respondUnauthorized(c, "Invalid admin key")
			return
		}

		c.Next()
	}
}

func respondUnauthorized(c *gin.Context, message string) {
	apiErr := apierr.New(http.StatusUnauthorized,
		"invalid_admin_key", "invalid_request_error", message)
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiErr.Envelope())
}
