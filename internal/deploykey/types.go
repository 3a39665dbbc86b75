package deploykey

import "strconv"

// DeploymentIdentity names the deployment credentials apply to. Immutable per
// panel session; a new identity always re-derives resolver state.
type DeploymentIdentity struct {
	Name      string `json:"name"`
	ProjectID int64  `json:"project_id,omitempty"` // 0 when unknown (desktop session)
}

// keyNamePart returns the project component of generated key names.
func (d DeploymentIdentity) keyNamePart() string {
	if d.ProjectID > 0 {
		return strconv.FormatInt(d.ProjectID, 10)
	}
	return "desktop"
}

// Source records where the active deploy key came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceManual    Source = "manual"
	SourceEnvFile   Source = "envFile"
)

// State is the resolver's externally visible credential state.
type State struct {
	// Key is the currently active deploy key, "" when none is held.
	Key string `json:"key,omitempty"`
	// Source is the provenance of Key, "" when no key is held.
	Source Source `json:"source,omitempty"`
	// Err holds the last resolution or generation failure for display.
	Err string `json:"error,omitempty"`
	// NotConfigured marks Err as informational: no key exists yet but
	// nothing failed, so the panel should not render a failure banner.
	NotConfigured bool `json:"not_configured,omitempty"`
	// Loading is true while a generation attempt is in flight.
	Loading bool `json:"is_loading"`
	// BoundDeployment is the deployment name Key was validated against.
	BoundDeployment string `json:"bound_deployment,omitempty"`
}

// hasValidBinding reports whether the held key is bound to the deployment.
func (s State) hasValidBinding(deployment string) bool {
	return s.Key != "" && s.BoundDeployment == deployment && Validate(s.Key, deployment) == nil
}
