package apierr

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// MapHTTPError maps dashboard API status codes and payloads to standardized errors.
func MapHTTPError(statusCode int, body []byte) *APIError {
	upstreamMsg := extractDashboardMessage(body)

	switch statusCode {
	case http.StatusBadRequest:
		return New(statusCode, "invalid_request", "invalid_request_error", firstNonEmpty(upstreamMsg, "Invalid request"))
	case http.StatusUnauthorized:
		return New(statusCode, "invalid_token", "authentication_error", firstNonEmpty(upstreamMsg, "Access token rejected"))
	case http.StatusForbidden:
		return New(statusCode, "permission_denied", "permission_error", firstNonEmpty(upstreamMsg, "Permission denied"))
	case http.StatusNotFound:
		return New(statusCode, "not_found", "invalid_request_error", firstNonEmpty(upstreamMsg, "Resource not found"))
	case http.StatusTooManyRequests:
		return New(statusCode, "rate_limit_exceeded", "rate_limit_error", firstNonEmpty(upstreamMsg, "Rate limit exceeded"))
	case http.StatusServiceUnavailable:
		return New(statusCode, "service_unavailable", "server_error", firstNonEmpty(upstreamMsg, "Service temporarily unavailable"))
	case http.StatusGatewayTimeout:
		return New(statusCode, "timeout", "timeout_error", firstNonEmpty(upstreamMsg, "Request timeout"))
	default:
		return New(statusCode, "unknown_error", "server_error", firstNonEmpty(upstreamMsg, fmt.Sprintf("HTTP %d error", statusCode)))
	}
}

// MapNetworkError maps transport-level errors to standardized APIError objects.
func MapNetworkError(err error) *APIError {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return New(http.StatusGatewayTimeout, "timeout", "timeout_error", "Request timeout: "+errMsg)
	case strings.Contains(errMsg, "connection refused"):
		return New(http.StatusBadGateway, "connection_error", "server_error", "Connection refused: "+errMsg)
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "name resolution"):
		return New(http.StatusBadGateway, "dns_error", "server_error", "DNS resolution error: "+errMsg)
	case strings.Contains(errMsg, "context canceled"):
		return New(http.StatusRequestTimeout, "request_canceled", "timeout_error", "Request was canceled: "+errMsg)
	default:
		return New(http.StatusBadGateway, "network_error", "server_error", "Network error: "+errMsg)
	}
}

// extractDashboardMessage pulls the human-readable message out of a dashboard
// error payload. The API returns either {"error": {"message": ...}} or a flat
// {"code": ..., "message": ...}.
func extractDashboardMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	msg := string(body)
	if len(msg) > 200 {
		return msg[:200] + "..."
	}
	return msg
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}
