package provider

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// APIError is a non-2xx response from an embedding provider's REST API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status %d: %s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is a provider throttle response.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	var oaErr *openai.APIError
	if errors.As(err, &oaErr) {
		return oaErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429
	}
	return false
}

// IsRetryable reports whether a provider call is worth repeating: throttles,
// timeouts and provider-side 5xx. Validation-style 4xx are not retryable.
func IsRetryable(err error) bool {
	if IsRateLimit(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 408 {
			return true
		}
		return apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599
	}
	var oaErr *openai.APIError
	if errors.As(err, &oaErr) {
		if oaErr.HTTPStatusCode == 408 {
			return true
		}
		return oaErr.HTTPStatusCode >= 500 && oaErr.HTTPStatusCode <= 599
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500 && reqErr.HTTPStatusCode <= 599
	}
	return false
}
