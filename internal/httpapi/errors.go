// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/logging"
)

// Status texts of error responses. Clients match on these.
const (
	StatusInvalidRequest     = "invalid request"
	StatusInvalidInput       = "invalid input"
	StatusInvalidCredentials = "invalid credentials"
	StatusHardwareMismatch   = "hardware mismatch"
	StatusAccountNotFound    = "account not found"
	StatusAlreadyRedeemed    = "key already redeemed"
	StatusInvalidKey         = "invalid key"
	StatusUsernameTaken      = "username taken"
	StatusUnavailable        = "temporarily unavailable"
	StatusInternal           = "internal error"
)

// ErrResponse is the JSON error body.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	Retryable      bool   `json:"retryable,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if e.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: http.StatusUnprocessableEntity,
		StatusText:     StatusInvalidRequest,
		Reason:         err.Error(),
	}
}

// errFromCore maps a core error to its HTTP status.
func errFromCore(err error) render.Renderer {
	switch {
	case core.IsTransient(err):
		return &ErrResponse{HTTPStatusCode: http.StatusServiceUnavailable, StatusText: StatusUnavailable, Retryable: true}
	case errors.Is(err, core.ErrInvalidCredentials):
		return &ErrResponse{HTTPStatusCode: http.StatusUnauthorized, StatusText: StatusInvalidCredentials}
	case errors.Is(err, core.ErrHardwareMismatch):
		return &ErrResponse{HTTPStatusCode: http.StatusForbidden, StatusText: StatusHardwareMismatch}
	case errors.Is(err, core.ErrAccountNotFound):
		return &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: StatusAccountNotFound}
	case errors.Is(err, core.ErrAlreadyRedeemed):
		return &ErrResponse{HTTPStatusCode: http.StatusUnprocessableEntity, StatusText: StatusAlreadyRedeemed}
	case errors.Is(err, core.ErrInvalidKey):
		return &ErrResponse{HTTPStatusCode: http.StatusUnprocessableEntity, StatusText: StatusInvalidKey}
	case errors.Is(err, core.ErrUsernameTaken):
		return &ErrResponse{HTTPStatusCode: http.StatusUnprocessableEntity, StatusText: StatusUsernameTaken}
	case errors.Is(err, core.ErrInvalidInput):
		return &ErrResponse{HTTPStatusCode: http.StatusUnprocessableEntity, StatusText: StatusInvalidInput, Reason: inputDetail(err)}
	default:
		logging.Errorf("http: unmapped error: %v", err)
		return &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, StatusText: StatusInternal}
	}
}

// inputDetail strips the rejection wrapping from an invalid-input error.
func inputDetail(err error) string {
	var r *core.RejectedError
	if errors.As(err, &r) {
		err = r.Reason
	}
	detail := strings.TrimPrefix(err.Error(), core.ErrInvalidInput.Error())
	return strings.TrimPrefix(detail, ": ")
}
