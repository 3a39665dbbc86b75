package server

import (
	"net/http"
	"sync"

	"convexpanel-go/internal/config"
	"convexpanel-go/internal/constants"
	"convexpanel-go/internal/dashboard"
	"convexpanel-go/internal/deploykey"
	"convexpanel-go/internal/events"
	mw "convexpanel-go/internal/middleware"
	"convexpanel-go/internal/oauth"
	"convexpanel-go/internal/store"

	"github.com/gin-gonic/gin"
)

// Dependencies encapsulates the runtime services behind the panel API.
type Dependencies struct {
	Resolver  *deploykey.Resolver
	Dashboard *dashboard.Client
	Storage   store.Store
	Tokens    *oauth.Cache
	Refresher *oauth.Refresher
	Hub       *events.Hub
}

// Server owns the active panel session: which deployment the panel is
// pointed at and the access token it authenticated with. The resolver derives
// credential state from these on every change.
type Server struct {
	cfg  *config.Config
	deps Dependencies

	mu          sync.RWMutex
	identity    deploykey.DeploymentIdentity
	accessToken string
}

// BuildEngine constructs the gin engine serving the panel API.
func BuildEngine(cfg *config.Config, deps Dependencies) (*gin.Engine, *Server) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, deps: deps}

	engine := gin.New()
	engine.Use(mw.RequestID())
	engine.Use(mw.RequestLogger())
	engine.Use(mw.Recovery())
	engine.Use(mw.CORS(cfg.PanelOrigin))
	engine.Use(mw.RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	engine.GET("/healthz", s.handleHealthz)

	var validator func(string) bool
	if cfg.AdminKey != "" || cfg.AdminKeyHash != "" {
		validator = config.AdminKeyValidator(cfg)
	}

	api := engine.Group("/api")
	api.Use(mw.AdminAuth(mw.AuthConfig{Validator: validator}))
	{
		api.POST("/resolve", s.handleResolve)
		api.GET("/state/:deployment", s.handleState)

		api.POST("/deployments/:name/key", s.handleRegenerateKey)
		api.PUT("/deployments/:name/key", s.handleSetManualKey)
		api.DELETE("/deployments/:name/key", s.handleClearKey)

		api.GET("/envfile/status", s.handleEnvFileStatus)
		api.POST("/envfile/use", s.handleEnvFileUse)
		api.POST("/envfile/write", s.handleEnvFileWrite)

		api.GET("/projects", s.handleListProjects)
		api.GET("/deployments", s.handleListDeployments)

		api.PUT("/auth/token", s.handlePutToken)
		api.POST("/auth/refresh", s.handleRefreshToken)
		api.DELETE("/auth/token", s.handleDeleteToken)
	}

	// WebSocket clients cannot set headers, so the event stream accepts the
	// admin key as a query parameter.
	engine.GET("/ws", mw.AdminAuth(mw.AuthConfig{Validator: validator, AllowQueryKey: true}), s.handleWebSocket)

	return engine, s
}

// session returns the active deployment identity and access token.
func (s *Server) session() (deploykey.DeploymentIdentity, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.accessToken
}

func (s *Server) setSession(identity deploykey.DeploymentIdentity, accessToken string) {
	s.mu.Lock()
	s.identity = identity
	s.accessToken = accessToken
	s.mu.Unlock()
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.deps.Storage != nil {
		if err := s.deps.Storage.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "degraded",
				"storage": err.Error(),
				"version": constants.Version,
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": constants.Version})
}
