package constants

import "time"

// Deploy key generation retry policy.
const (
	KeyGenMaxAttempts = 3
	// KeyGenBaseDelay doubles on each subsequent attempt (1s, 2s).
	KeyGenBaseDelay = 1 * time.Second

	// Per-attempt bound on the dashboard key creation call. The upstream
	// client has its own timeout; this keeps a single attempt from pinning
	// the loading state indefinitely.
	KeyGenAttemptTimeout = 10 * time.Second
)

// Dashboard client defaults.
const (
	DashboardRequestTimeout = 30 * time.Second
)
