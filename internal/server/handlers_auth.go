package server

import (
	"net/http"
	"time"

	"convexpanel-go/internal/apierr"
	"convexpanel-go/internal/oauth"

	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	TeamID       string `json:"team_id"`
}

// handlePutToken caches the OAuth token the panel obtained through its own
// sign-in flow, so the daemon can fall back to it and survive restarts.
func (s *Server) handlePutToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AccessToken == "" {
		badRequest(c, "access_token is required")
		return
	}

	tok := oauth.Token{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TeamID:       req.TeamID,
	}
	if req.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			badRequest(c, "expires_at must be RFC3339")
			return
		}
		tok.ExpiresAt = expires
	}

	if err := s.deps.Tokens.Put(c.Request.Context(), tok); err != nil {
		apiErr := apierr.New(http.StatusInternalServerError, "token_persist_failed", "internal_error", err.Error())
		c.JSON(http.StatusInternalServerError, apiErr.Envelope())
		return
	}
	c.JSON(http.StatusOK, gin.H{"cached": true})
}

// handleRefreshToken renews the cached token via the auth service.
func (s *Server) handleRefreshToken(c *gin.Context) {
	tok := s.deps.Tokens.Get()
	if tok == nil {
		respondDashboardError(c, apierr.New(http.StatusUnauthorized,
			"not_signed_in", "invalid_request_error", "no cached token to refresh"))
		return
	}

	if s.deps.Refresher == nil {
		respondDashboardError(c, apierr.New(http.StatusNotImplemented,
			"refresh_unavailable", "invalid_request_error", "auth service is not configured"))
		return
	}

	renewed, err := s.deps.Refresher.Refresh(c.Request.Context(), *tok)
	if err != nil {
		respondDashboardError(c, apierr.New(http.StatusBadGateway,
			"refresh_failed", "upstream_error", err.Error()))
		return
	}
	if err := s.deps.Tokens.Put(c.Request.Context(), renewed); err != nil {
		apiErr := apierr.New(http.StatusInternalServerError, "token_persist_failed", "internal_error", err.Error())
		c.JSON(http.StatusInternalServerError, apiErr.Envelope())
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": renewed.ExpiresAt})
}

// handleDeleteToken signs the daemon out.
func (s *Server) handleDeleteToken(c *gin.Context) {
	if err := s.deps.Tokens.Clear(c.Request.Context()); err != nil {
		apiErr := apierr.New(http.StatusInternalServerError, "token_clear_failed", "internal_error", err.Error())
		c.JSON(http.StatusInternalServerError, apiErr.Envelope())
		return
	}
	identity, _ := s.session()
	s.setSession(identity, "")
	c.JSON(http.StatusOK, gin.H{"cached": false})
}
