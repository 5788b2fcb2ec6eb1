package ai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
)

// APIError carries the provider's error details for logging
type APIError struct {
	Message    string
	Type       string
	Code       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// ExtractAPIError returns the provider error details when err came from the
// OpenAI API, or nil otherwise
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var oe *openai.Error
	if !errors.As(err, &oe) {
		return nil
	}
	return &APIError{
		Message:    oe.Message,
		Type:       oe.Type,
		Code:       oe.Code,
		StatusCode: oe.StatusCode,
	}
}

// IsRateLimitError reports a transient 429
func IsRateLimitError(err error) bool {
	apiErr := ExtractAPIError(err)
	return apiErr != nil && apiErr.StatusCode == http.StatusTooManyRequests && apiErr.Code != "insufficient_quota"
}

// IsQuotaError reports an exhausted account quota
func IsQuotaError(err error) bool {
	apiErr := ExtractAPIError(err)
	return apiErr != nil && apiErr.Code == "insufficient_quota"
}
