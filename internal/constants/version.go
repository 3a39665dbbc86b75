package constants

// Version information (injected at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetFullVersion returns the full version string for logs and the health endpoint.
func GetFullVersion() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
