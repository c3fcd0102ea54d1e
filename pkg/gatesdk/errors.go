package gatesdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nanolos/gate/pkg/httpx"
)

// Error codes used across the message API and REST views.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeUnknownAction  = "unknown_action"
	ErrorCodeInvalidToken   = "invalid_token"
	ErrorCodeNoToken        = "no_token"
	ErrorCodeServerError    = "server_error"
)

// APIError is the gate's error response. It implements the error interface
// and is shared by the server (to write HTTP responses) and the SDK client
// (to surface typed failures).
type APIError struct {
	// StatusCode is the HTTP status code for this error.
	StatusCode int `json:"-"`

	// Code is the machine-readable error code.
	Code string `json:"error"`

	// Description is a human-readable description of the error.
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

var (
	// ErrInvalidRequest is returned when the request body is malformed or
	// missing required fields.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required fields",
	}

	// ErrUnknownAction is returned for a message type outside the
	// vocabulary.
	ErrUnknownAction = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnknownAction,
		Description: "unrecognized message type",
	}

	// ErrInvalidToken is returned when a relayed token fails the candidate
	// checks or is already expired.
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnprocessableEntity,
		Code:        ErrorCodeInvalidToken,
		Description: "the relayed token is not a usable credential",
	}

	// ErrNoToken is returned by GET_TOKEN when no usable credential is
	// held.
	ErrNoToken = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNoToken,
		Description: "no usable credential is currently held",
	}

	// ErrServerError is the catch-all internal failure.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewAPIError creates an APIError with a custom description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// parseErrorResponse turns a non-2xx HTTP response into a typed error.
// Returns nil for 2xx responses.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
