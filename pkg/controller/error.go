// Package controller renders store results and errors as HTTP responses.
package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/store"
)

// Error categories reported in ErrorResponse.Error.
const (
	CategoryValidation  = "validation_error"
	CategoryUnavailable = "service_unavailable"
	CategoryBadGateway  = "bad_gateway"
	CategoryTimeout     = "gateway_timeout"
	CategoryInternal    = "internal_server_error"
)

const internalMessage = "an unexpected error occurred"

// ErrorResponse represents the consistent error response format.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RequestError rejects a request before it reaches the store, such as a
// body that is not JSON.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// NewValidationError creates a 400 RequestError.
func NewValidationError(message string) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: message}
}

// StatusFor returns the HTTP status for a store error kind.
func StatusFor(kind store.Kind) int {
	switch kind {
	case store.KindInvalidPayload, store.KindInvalidKey:
		return http.StatusBadRequest
	case store.KindNotInitialized, store.KindConnectionFailed:
		return http.StatusServiceUnavailable
	case store.KindBackendOperationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError maps err to a status code and response body. Messages of
// configuration and unclassified errors are not exposed.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	requestID := logger.RequestIDFromContext(ctx)

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status, ErrorResponse{
			Error:     errorCategory(reqErr.Status),
			Message:   reqErr.Message,
			RequestID: requestID,
		}
	}

	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Kind == store.KindInvalidConfiguration {
		resp := ErrorResponse{
			Error:     CategoryInternal,
			Message:   internalMessage,
			RequestID: requestID,
		}
		if storeErr != nil {
			resp.Code = string(storeErr.Kind)
		}
		return http.StatusInternalServerError, resp
	}

	status := StatusFor(storeErr.Kind)
	if status == http.StatusBadGateway && errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	resp := ErrorResponse{
		Error:     errorCategory(status),
		Code:      string(storeErr.Kind),
		Message:   storeErr.Error(),
		RequestID: requestID,
	}
	switch {
	case storeErr.Partial:
		resp.Details = map[string]any{"partial": true}
	case storeErr.Kind == store.KindConnectionFailed && storeErr.Attempts > 0:
		resp.Details = map[string]any{"attempts": storeErr.Attempts}
	}
	return status, resp
}

func errorCategory(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return CategoryValidation
	case http.StatusServiceUnavailable:
		return CategoryUnavailable
	case http.StatusBadGateway:
		return CategoryBadGateway
	case http.StatusGatewayTimeout:
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}
