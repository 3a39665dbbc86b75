package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"convexpanel-go/internal/apierr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDeployKeySuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"deployKey": "dev:my-app-123|secret"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	key, err := c.CreateDeployKey(context.Background(), "tok", "my-app-123", "cp-42-1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "dev:my-app-123|secret", key)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/deployments/my-app-123/create_deploy_key", gotPath)
	assert.Equal(t, "cp-42-1700000000000", gotBody["name"])
}

func TestCreateDeployKeyLegacyField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"adminKey": "prod:app|secret"})
	}))
	defer srv.Close()

	key, err := NewClient(srv.URL).CreateDeployKey(context.Background(), "tok", "app", "k")
	require.NoError(t, err)
	assert.Equal(t, "prod:app|secret", key)
}

func TestCreateDeployKeyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "token revoked"}})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateDeployKey(context.Background(), "tok", "app", "k")
	require.Error(t, err)
	apiErr, ok := err.(*apierr.APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus)
	assert.Equal(t, "token revoked", apiErr.Message)
}

func TestCreateDeployKeyMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"unexpected": "shape"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateDeployKey(context.Background(), "tok", "app", "k")
	require.Error(t, err)
	apiErr, ok := err.(*apierr.APIError)
	require.True(t, ok)
	assert.Equal(t, "malformed_response", apiErr.Code)
}

func TestListProjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/projects", r.URL.Path)
		_, _ = w.Write([]byte(`{"projects":[{"id":7,"name":"demo","slug":"demo-slug","teamId":3}]}`))
	}))
	defer srv.Close()

	projects, err := NewClient(srv.URL).ListProjects(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, int64(7), projects[0].ID)
	assert.Equal(t, "demo-slug", projects[0].Slug)
	assert.Equal(t, int64(3), projects[0].TeamID)
}

func TestListDeployments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/projects/7/deployments", r.URL.Path)
		_, _ = w.Write([]byte(`{"deployments":[{"name":"my-app-123","deploymentType":"dev","url":"https://my-app-123.convex.cloud"}]}`))
	}))
	defer srv.Close()

	deployments, err := NewClient(srv.URL).ListDeployments(context.Background(), "tok", 7)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, "my-app-123", deployments[0].Name)
	assert.Equal(t, "dev", deployments[0].DeploymentType)
	assert.Equal(t, int64(7), deployments[0].ProjectID)
}

func TestValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ok, err := c.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ValidateToken(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}
