package server

import (
	"net/http"

	"convexpanel-go/internal/apierr"
	"convexpanel-go/internal/deploykey"

	"github.com/gin-gonic/gin"
)

type resolveRequest struct {
	Deployment  string `json:"deployment"`
	ProjectID   int64  `json:"project_id"`
	AccessToken string `json:"access_token"`
}

// handleResolve points the session at a deployment and re-derives credential
// state. The panel calls it on load, after sign-in, and on deployment switch.
func (s *Server) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}

	token := req.AccessToken
	if token == "" && s.deps.Tokens != nil {
		token = s.deps.Tokens.GetValidAccessToken()
	}

	identity := deploykey.DeploymentIdentity{Name: req.Deployment, ProjectID: req.ProjectID}
	s.setSession(identity, token)
	c.Set("deployment", req.Deployment)

	state := s.deps.Resolver.Resolve(c.Request.Context(), identity, token)
	c.JSON(http.StatusOK, stateResponse(state))
}

// handleState reports credential state for a deployment without side effects
// beyond re-validation against the current session.
func (s *Server) handleState(c *gin.Context) {
	name := c.Param("deployment")
	c.Set("deployment", name)

	identity, token := s.session()
	if identity.Name != name {
		identity = deploykey.DeploymentIdentity{Name: name}
	}

	state := s.deps.Resolver.Resolve(c.Request.Context(), identity, token)
	c.JSON(http.StatusOK, stateResponse(state))
}

func (s *Server) handleRegenerateKey(c *gin.Context) {
	name := c.Param("name")
	c.Set("deployment", name)

	identity, token := s.session()
	if identity.Name != name {
		identity = deploykey.DeploymentIdentity{Name: name}
	}

	state := s.deps.Resolver.Regenerate(c.Request.Context(), identity, token)
	c.JSON(http.StatusOK, stateResponse(state))
}

type manualKeyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleSetManualKey(c *gin.Context) {
	name := c.Param("name")
	c.Set("deployment", name)

	var req manualKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}

	identity, _ := s.session()
	if identity.Name != name {
		identity = deploykey.DeploymentIdentity{Name: name}
	}

	state := s.deps.Resolver.SetManual(c.Request.Context(), req.Key, identity)
	status := http.StatusOK
	if state.Err != "" && state.Key == "" {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, stateResponse(state))
}

func (s *Server) handleClearKey(c *gin.Context) {
	name := c.Param("name")
	c.Set("deployment", name)

	identity, _ := s.session()
	if identity.Name != name {
		identity = deploykey.DeploymentIdentity{Name: name}
	}

	state := s.deps.Resolver.ClearManual(c.Request.Context(), identity)
	c.JSON(http.StatusOK, stateResponse(state))
}

// stateResponse shapes resolver state for the panel. The key itself stays in
// the payload: the daemon is loopback-only and the panel needs it for deploys.
func stateResponse(state deploykey.State) gin.H {
	return gin.H{"state": state}
}

func badRequest(c *gin.Context, message string) {
	apiErr := apierr.New(http.StatusBadRequest, "bad_request", "invalid_request_error", message)
	c.AbortWithStatusJSON(http.StatusBadRequest, apiErr.Envelope())
}
