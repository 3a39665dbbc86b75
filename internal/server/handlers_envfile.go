package server

import (
	"net/http"

	"convexpanel-go/internal/apierr"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleEnvFileStatus(c *gin.Context) {
	identity, _ := s.session()
	status, err := s.deps.Resolver.ReconcileWithEnvFile(c.Request.Context(), s.cfg.EnvFilePath(), identity)
	if err != nil {
		apiErr := apierr.New(http.StatusInternalServerError, "envfile_read_failed", "internal_error", err.Error())
		c.JSON(http.StatusInternalServerError, apiErr.Envelope())
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleEnvFileUse(c *gin.Context) {
	identity, _ := s.session()
	if identity.Name == "" {
		badRequest(c, "no active deployment; call /api/resolve first")
		return
	}
	state := s.deps.Resolver.UseEnvFileKey(c.Request.Context(), s.cfg.EnvFilePath(), identity)
	status := http.StatusOK
	if state.Err != "" && state.Key == "" {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, stateResponse(state))
}

func (s *Server) handleEnvFileWrite(c *gin.Context) {
	if err := s.deps.Resolver.WriteKeyToEnvFile(c.Request.Context(), s.cfg.EnvFilePath()); err != nil {
		apiErr := apierr.New(http.StatusConflict, "no_key_held", "invalid_request_error", err.Error())
		c.JSON(http.StatusConflict, apiErr.Envelope())
		return
	}
	c.JSON(http.StatusOK, gin.H{"written": true, "path": s.cfg.EnvFilePath()})
}
