package constants

import "time"

const (
	// EnvFileWatchDebounce collapses bursts of file events into one reload.
	EnvFileWatchDebounce = 300 * time.Millisecond
	// OAuthExpirySkew treats tokens expiring within this window as expired.
	OAuthExpirySkew = 3 * time.Minute
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 30 * time.Second
)
