package middleware

import (
	"github.com/gin-gonic/gin"
)

// CORS restricts cross-origin access to the configured panel origin. The
// daemon binds to loopback, but the panel itself is served from its own
// origin and talks to us with fetch + WebSocket.
func CORS(panelOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (panelOrigin == "*" || origin == panelOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
