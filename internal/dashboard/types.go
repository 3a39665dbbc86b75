package dashboard

// Project is a Convex project visible to the authenticated member.
type Project struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	TeamID int64  `json:"team_id"`
}

// Deployment is one backend environment of a project.
type Deployment struct {
	Name           string `json:"name"`
	DeploymentType string `json:"deployment_type"` // dev, prod or preview
	ProjectID      int64  `json:"project_id"`
	URL            string `json:"url,omitempty"`
}
