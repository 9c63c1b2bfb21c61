package serializer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valis-ai/valis/internal/pkg/apperr"
)

// Response
type Response struct {
	Code  int         `json:"code"`
	Data  interface{} `json:"data,omitempty"`
	Msg   string      `json:"msg"`
	Error string      `json:"error,omitempty"`
}

// TrackedErrorResponse
type TrackedErrorResponse struct {
	Response
	TraceID string `json:"trace_id"`
}

// Err builds an error envelope. Error is always set; in release mode server
// errors carry only the status text.
func Err(errCode int, msg string, err error) Response {
	res := Response{
		Code: errCode,
		Msg:  msg,
	}
	switch {
	case err != nil && gin.Mode() != gin.ReleaseMode:
		// development mode, show error detail
		res.Error = fmt.Sprintf("%+v", err)
	case errCode >= http.StatusInternalServerError:
		res.Error = http.StatusText(errCode)
	case err != nil:
		res.Error = err.Error()
	default:
		res.Error = msg
	}
	return res
}

// ParamErr
func ParamErr(msg string, err error) Response {
	if msg == "" {
		msg = "parameter error"
	}
	return Err(http.StatusBadRequest, msg, err)
}

// AuthErr
func AuthErr(msg string) Response {
	if msg == "" {
		msg = "authentication error"
	}
	return Err(http.StatusUnauthorized, msg, nil)
}

var errorTable = []struct {
	target error
	status int
	msg    string
}{
	{apperr.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{apperr.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperr.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{apperr.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{apperr.ErrAlreadyRunning, http.StatusConflict, "already_running"},
	{apperr.ErrTimeout, http.StatusGatewayTimeout, "timeout"},
	{apperr.ErrCollaboratorFailure, http.StatusInternalServerError, "upstream_failure"},
}

// FromError maps a service error to its HTTP status and envelope. Errors
// outside the known kinds become 500 "internal_error".
func FromError(err error) (int, Response) {
	status, msg := http.StatusInternalServerError, "internal_error"
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			status, msg = e.status, e.msg
			break
		}
	}
	return status, Err(status, msg, err)
}
