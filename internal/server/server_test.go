package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"convexpanel-go/internal/config"
	"convexpanel-go/internal/dashboard"
	"convexpanel-go/internal/deploykey"
	"convexpanel-go/internal/events"
	"convexpanel-go/internal/oauth"
	"convexpanel-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fixture struct {
	engine *gin.Engine
	hub    *events.Hub
	cfg    *config.Config
}

// newFixture wires a full engine against a fake dashboard API.
func newFixture(t *testing.T, dashboardHandler http.HandlerFunc) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(dashboardHandler)
	t.Cleanup(upstream.Close)

	cfg := config.Defaults()
	cfg.DashboardURL = upstream.URL
	cfg.ProjectDir = t.TempDir()
	cfg.SecretsDir = t.TempDir()

	fs := store.NewFileStore(cfg.SecretsDir)
	require.NoError(t, fs.Initialize(context.Background()))

	hub := events.NewHub()
	client := dashboard.NewClient(cfg.DashboardURL)
	resolver := deploykey.NewResolver(deploykey.Options{
		Creator:   client,
		Store:     fs,
		Publisher: hub,
		Sleep:     func(_ context.Context, _ time.Duration) error { return nil },
	})

	engine, _ := BuildEngine(cfg, Dependencies{
		Resolver:  resolver,
		Dashboard: client,
		Storage:   fs,
		Tokens:    oauth.NewCache(fs),
		Hub:       hub,
	})
	return &fixture{engine: engine, hub: hub, cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func okDashboard(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/create_deploy_key"):
			json.NewEncoder(w).Encode(map[string]string{"deployKey": "dev:my-app-123|minted"})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, okDashboard(t))
	w := f.do(t, "GET", "/healthz", nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
}

func TestResolveWithoutTokenIsUnauthenticatedState(t *testing.T) {
	f := newFixture(t, okDashboard(t))
	w := f.do(t, "POST", "/api/resolve", map[string]any{"deployment": "my-app-123"})
	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.False(t, gjson.Get(body, "state.error").Exists())
	assert.Empty(t, gjson.Get(body, "state.key").String())
}

func TestResolveAndRegenerateFlow(t *testing.T) {
	f := newFixture(t, okDashboard(t))

	w := f.do(t, "POST", "/api/resolve", map[string]any{
		"deployment": "my-app-123", "access_token": "tok",
	})
	require.Equal(t, 200, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "state.not_configured").Bool())

	w = f.do(t, "POST", "/api/deployments/my-app-123/key", nil)
	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Equal(t, "dev:my-app-123|minted", gjson.Get(body, "state.key").String())
	assert.Equal(t, "generated", gjson.Get(body, "state.source").String())

	w = f.do(t, "GET", "/api/state/my-app-123", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "dev:my-app-123|minted", gjson.Get(w.Body.String(), "state.key").String())
}

func TestManualKeyEndpoints(t *testing.T) {
	f := newFixture(t, okDashboard(t))
	f.do(t, "POST", "/api/resolve", map[string]any{
		"deployment": "my-app-123", "access_token": "tok",
	})

	w := f.do(t, "PUT", "/api/deployments/my-app-123/key", map[string]string{"key": "garbage"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotEmpty(t, gjson.Get(w.Body.String(), "state.error").String())

	w = f.do(t, "PUT", "/api/deployments/my-app-123/key", map[string]string{"key": "prod:my-app-123|byhand"})
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "manual", gjson.Get(w.Body.String(), "state.source").String())

	w = f.do(t, "DELETE", "/api/deployments/my-app-123/key", nil)
	require.Equal(t, 200, w.Code)
	assert.Empty(t, gjson.Get(w.Body.String(), "state.key").String())
}

func TestEnvFileEndpoints(t *testing.T) {
	f := newFixture(t, okDashboard(t))
	f.do(t, "POST", "/api/resolve", map[string]any{
		"deployment": "my-app-123", "access_token": "tok",
	})

	w := f.do(t, "GET", "/api/envfile/status", nil)
	require.Equal(t, 200, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "has_key").Bool())

	// Nothing held yet, so a write is refused.
	w = f.do(t, "POST", "/api/envfile/write", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	f.do(t, "PUT", "/api/deployments/my-app-123/key", map[string]string{"key": "dev:my-app-123|tok"})
	w = f.do(t, "POST", "/api/envfile/write", nil)
	require.Equal(t, 200, w.Code)

	w = f.do(t, "GET", "/api/envfile/status", nil)
	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.True(t, gjson.Get(body, "has_key").Bool())
	assert.True(t, gjson.Get(body, "in_sync").Bool())

	w = f.do(t, "POST", "/api/envfile/use", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "envFile", gjson.Get(w.Body.String(), "state.source").String())
}

func TestDashboardListingRequiresSession(t *testing.T) {
	f := newFixture(t, okDashboard(t))
	w := f.do(t, "GET", "/api/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, "GET", "/api/deployments", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDashboardListings(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/dashboard/projects":
			w.Write([]byte(`{"projects":[{"id":1,"name":"demo","slug":"demo","teamId":7}]}`))
		case strings.HasSuffix(r.URL.Path, "/deployments"):
			w.Write([]byte(`{"deployments":[{"name":"my-app-123","deploymentType":"dev"}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	f.do(t, "POST", "/api/resolve", map[string]any{"deployment": "", "access_token": "tok"})

	w := f.do(t, "GET", "/api/projects", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "demo", gjson.Get(w.Body.String(), "projects.0.name").String())

	w = f.do(t, "GET", "/api/deployments?project_id=1", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "my-app-123", gjson.Get(w.Body.String(), "deployments.0.name").String())

	w = f.do(t, "GET", "/api/deployments", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAuthGuardsAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.Defaults()
	cfg.AdminKey = "secret"
	cfg.ProjectDir = t.TempDir()
	cfg.SecretsDir = t.TempDir()

	hub := events.NewHub()
	client := dashboard.NewClient("http://127.0.0.1:0")
	resolver := deploykey.NewResolver(deploykey.Options{Creator: client, Publisher: hub})
	engine, _ := BuildEngine(cfg, Dependencies{Resolver: resolver, Dashboard: client, Hub: hub})

	req := httptest.NewRequest("GET", "/api/state/my-app-123", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/api/state/my-app-123", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)

	// Health stays open for process supervisors.
	req = httptest.NewRequest("GET", "/healthz", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}

func TestAuthTokenEndpoints(t *testing.T) {
	f := newFixture(t, okDashboard(t))

	w := f.do(t, "PUT", "/api/auth/token", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "PUT", "/api/auth/token", map[string]any{
		"access_token": "tok",
		"expires_at":   time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, 200, w.Code)

	// No auth service configured in this fixture.
	w = f.do(t, "POST", "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = f.do(t, "DELETE", "/api/auth/token", nil)
	require.Equal(t, 200, w.Code)

	w = f.do(t, "POST", "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebSocketStreamsHubEvents(t *testing.T) {
	f := newFixture(t, okDashboard(t))

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	f.hub.Publish(context.Background(), events.TopicDeployKeyChanged, map[string]any{
		"deployment": "my-app-123", "source": "generated",
	}, nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.TopicDeployKeyChanged, ev.Topic)
}
