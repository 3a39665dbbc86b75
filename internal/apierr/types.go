package apierr

import "fmt"

// APIError represents a standardized error from the dashboard API or the
// daemon itself, carrying enough structure for the panel to render it.
type APIError struct {
	HTTPStatus int
	Code       string
	Type       string
	Message    string
}

// New constructs an APIError.
func New(status int, code, errType, message string) *APIError {
	return &APIError{
		HTTPStatus: status,
		Code:       code,
		Type:       errType,
		Message:    message,
	}
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Envelope renders the error in the JSON shape the panel expects.
func (e *APIError) Envelope() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": e.Message,
			"type":    e.Type,
			"code":    e.Code,
		},
	}
}
