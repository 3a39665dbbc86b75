package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"convexpanel-go/internal/apierr"
	"convexpanel-go/internal/constants"
	"convexpanel-go/internal/monitoring/tracing"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Client talks to the Convex dashboard REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes Client creation.
type ClientOption func(*Client)

// NewClient creates a dashboard API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: constants.DashboardRequestTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithHTTPClient overrides the HTTP client used for outbound calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// CreateDeployKey mints a new deploy key for the deployment. Any non-2xx
// response is returned as an error; callers treat all failures alike.
func (c *Client) CreateDeployKey(ctx context.Context, accessToken, deploymentName, keyName string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "dashboard", "CreateDeployKey")
	defer span.End()
	span.SetAttributes(
		attribute.String("deployment.name", deploymentName),
		attribute.String("key.name", keyName),
	)

	payload, err := json.Marshal(map[string]string{"name": keyName})
	if err != nil {
		return "", fmt.Errorf("marshal key request: %w", err)
	}

	url := fmt.Sprintf("%s/api/deployments/%s/create_deploy_key", c.baseURL, deploymentName)
	body, apiErr := c.do(ctx, http.MethodPost, url, accessToken, bytes.NewReader(payload))
	if apiErr != nil {
		span.SetStatus(codes.Error, apiErr.Message)
		return "", apiErr
	}

	key := gjson.GetBytes(body, "deployKey")
	if !key.Exists() {
		key = gjson.GetBytes(body, "adminKey")
	}
	if key.String() == "" {
		err := apierr.New(http.StatusBadGateway, "malformed_response", "server_error", "key creation response missing deploy key")
		span.SetStatus(codes.Error, err.Message)
		return "", err
	}

	log.WithField("deployment", deploymentName).Info("deploy key created")
	return key.String(), nil
}

// ListProjects returns the projects visible to the token's member.
func (c *Client) ListProjects(ctx context.Context, accessToken string) ([]Project, error) {
	ctx, span := tracing.StartSpan(ctx, "dashboard", "ListProjects")
	defer span.End()

	body, apiErr := c.do(ctx, http.MethodGet, c.baseURL+"/api/dashboard/projects", accessToken, nil)
	if apiErr != nil {
		span.SetStatus(codes.Error, apiErr.Message)
		return nil, apiErr
	}

	var projects []Project
	gjson.GetBytes(body, "projects").ForEach(func(_, item gjson.Result) bool {
		projects = append(projects, Project{
			ID:     item.Get("id").Int(),
			Name:   item.Get("name").String(),
			Slug:   item.Get("slug").String(),
			TeamID: item.Get("teamId").Int(),
		})
		return true
	})
	return projects, nil
}

// ListDeployments returns the deployments of a project.
func (c *Client) ListDeployments(ctx context.Context, accessToken string, projectID int64) ([]Deployment, error) {
	ctx, span := tracing.StartSpan(ctx, "dashboard", "ListDeployments")
	defer span.End()
	span.SetAttributes(attribute.Int64("project.id", projectID))

	url := fmt.Sprintf("%s/api/dashboard/projects/%d/deployments", c.baseURL, projectID)
	body, apiErr := c.do(ctx, http.MethodGet, url, accessToken, nil)
	if apiErr != nil {
		span.SetStatus(codes.Error, apiErr.Message)
		return nil, apiErr
	}

	var deployments []Deployment
	gjson.GetBytes(body, "deployments").ForEach(func(_, item gjson.Result) bool {
		deployments = append(deployments, Deployment{
			Name:           item.Get("name").String(),
			DeploymentType: item.Get("deploymentType").String(),
			ProjectID:      projectID,
			URL:            item.Get("url").String(),
		})
		return true
	})
	return deployments, nil
}

// ValidateToken checks whether the access token is still accepted.
func (c *Client) ValidateToken(ctx context.Context, accessToken string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "dashboard", "ValidateToken")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/dashboard/profile", nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, apierr.MapNetworkError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

// do executes one authenticated request and maps failures to APIErrors.
func (c *Client) do(ctx context.Context, method, url, accessToken string, body io.Reader) ([]byte, *apierr.APIError) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "request_build_failed", "internal_error", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.MapNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.MapNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apierr.MapHTTPError(resp.StatusCode, data)
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"url":    url,
		}).Warnf("dashboard request failed: %s", apiErr.Message)
		return nil, apiErr
	}
	return data, nil
}
