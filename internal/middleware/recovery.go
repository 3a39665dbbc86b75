package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"convexpanel-go/internal/apierr"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery converts handler panics into a 500 response instead of tearing
// down the daemon. The panel keeps its connection; only the request dies.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()

				log.WithFields(log.Fields{
					"error":      err,
					"stack":      string(stack),
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"client_ip":  c.ClientIP(),
					"user_agent": c.Request.UserAgent(),
					"timestamp":  time.Now().Format(time.RFC3339),
				}).Error("Panic recovered")

				apiErr := apierr.New(http.StatusInternalServerError,
					"panic_recovered", "internal_error", "Internal server error")
				c.AbortWithStatusJSON(http.StatusInternalServerError, apiErr.Envelope())
			}
		}()

		c.Next()
	}
}

// SafeGo starts a goroutine with panic recovery. Background loops (env file
// watcher, event fan-out) run under it so a panic never kills the daemon.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				log.WithFields(log.Fields{
					"goroutine": name,
					"error":     err,
					"stack":     string(stack),
				}).Error("Goroutine panic recovered")
			}
		}()
		fn()
	}()
}
