package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// APIError is a provider call that failed. StatusCode is the provider's
// HTTP status, 0 when the failure happened before a response was read.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the provider HTTP status from err, 0 if unknown.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func wrapOpenAIError(provider string, err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var oaErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &oaErr):
		status = oaErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &APIError{Provider: provider, StatusCode: status, Err: err}
}

func wrapGoogleError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		status = gErr.Code
	}
	return &APIError{Provider: "gemini", StatusCode: status, Err: err}
}

// claudeStatus maps the typed errors of the Anthropic API to the status
// codes it documents for them.
var claudeStatus = map[anthropic.ErrType]int{
	anthropic.ErrTypeInvalidRequest: http.StatusBadRequest,
	anthropic.ErrTypeAuthentication: http.StatusUnauthorized,
	anthropic.ErrTypePermission:     http.StatusForbidden,
	anthropic.ErrTypeNotFound:       http.StatusNotFound,
	anthropic.ErrTypeTooLarge:       http.StatusRequestEntityTooLarge,
	anthropic.ErrTypeRateLimit:      http.StatusTooManyRequests,
	anthropic.ErrTypeApi:            http.StatusInternalServerError,
	anthropic.ErrTypeOverloaded:     529,
}

func wrapClaudeError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var reqErr *anthropic.RequestError
	var apiErr *anthropic.APIError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.StatusCode
	case errors.As(err, &apiErr):
		status = claudeStatus[apiErr.Type]
	}
	return &APIError{Provider: "claude", StatusCode: status, Err: err}
}
