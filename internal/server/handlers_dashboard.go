package server

import (
	"errors"
	"net/http"
	"strconv"

	"convexpanel-go/internal/apierr"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListProjects(c *gin.Context) {
	_, token := s.session()
	if token == "" {
		respondDashboardError(c, apierr.New(http.StatusUnauthorized,
			"not_signed_in", "invalid_request_error", "sign in before listing projects"))
		return
	}

	projects, err := s.deps.Dashboard.ListProjects(c.Request.Context(), token)
	if err != nil {
		respondUpstream(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) handleListDeployments(c *gin.Context) {
	_, token := s.session()
	if token == "" {
		respondDashboardError(c, apierr.New(http.StatusUnauthorized,
			"not_signed_in", "invalid_request_error", "sign in before listing deployments"))
		return
	}

	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		badRequest(c, "project_id query parameter is required")
		return
	}

	deployments, err := s.deps.Dashboard.ListDeployments(c.Request.Context(), token, projectID)
	if err != nil {
		respondUpstream(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": deployments})
}

// respondUpstream relays a dashboard API failure, preserving its status and
// error envelope when the failure carries one.
func respondUpstream(c *gin.Context, err error) {
	var apiErr *apierr.APIError
	if errors.As(err, &apiErr) {
		respondDashboardError(c, apiErr)
		return
	}
	respondDashboardError(c, apierr.New(http.StatusBadGateway,
		"dashboard_unreachable", "upstream_error", err.Error()))
}

func respondDashboardError(c *gin.Context, apiErr *apierr.APIError) {
	status := apiErr.HTTPStatus
	if status == 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, apiErr.Envelope())
}
