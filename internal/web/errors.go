package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusFor(err))
//  3. Error is mapped to a user message: web-only sentinels first, then core.MapError
//  4. Technical error + context is logged with the request id
//  5. The user message is written as JSON; validation failures also carry
//     the per-field messages
//
// Codes added here on top of core's:
//
//	AUTH001 - Sign-in failed (auth.ErrInvalidCredentials)
//	AUTH002 - Not signed in or session expired (auth.ErrInvalidToken)
//	VAL007  - Unknown reference list (refdata.ErrUnknownKind)
//	REQ001  - Malformed request body
//	REQ002  - Route or method not found
//	REQ003  - Invalid import option

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/JonMunkholm/eteeap-survey/internal/refdata"
)

var (
	errBadRequest       = errors.New("malformed request body")
	errNotFound         = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errInvalidOption    = errors.New("invalid import option")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Action  string              `json:"action,omitempty"`
	Code    string              `json:"code"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

var webMessages = []struct {
	target error
	msg    core.UserMessage
}{
	{auth.ErrInvalidCredentials, core.UserMessage{Message: "Sign-in failed", Action: "Check your email, password or code and try again", Code: "AUTH001"}},
	{auth.ErrInvalidToken, core.UserMessage{Message: "Your session has expired", Action: "Sign in again", Code: "AUTH002"}},
	{refdata.ErrUnknownKind, core.UserMessage{Message: "Unknown reference list", Action: "Use positions or courses", Code: "VAL007"}},
	{errBadRequest, core.UserMessage{Message: "The request could not be read", Action: "Send a valid JSON body", Code: "REQ001"}},
	{errInvalidOption, core.UserMessage{Message: "An import option is invalid", Action: "Use a whole number greater than zero for max_rows", Code: "REQ003"}},
	{errNotFound, core.UserMessage{Message: "Not found", Action: "Check the address", Code: "REQ002"}},
	{errMethodNotAllowed, core.UserMessage{Message: "Method not allowed", Action: "Check the request method", Code: "REQ002"}},
}

func mapError(err error) core.UserMessage {
	for _, m := range webMessages {
		if errors.Is(err, m.target) {
			return m.msg
		}
	}
	return core.MapError(err)
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, core.ErrConsentRequired),
		errors.Is(err, otp.ErrInvalidRequest),
		errors.Is(err, errBadRequest),
		errors.Is(err, errInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, core.ErrDraftNotFound),
		errors.Is(err, core.ErrUnknownReport),
		errors.Is(err, refdata.ErrUnknownKind),
		errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicate),
		errors.Is(err, core.ErrStepOutOfOrder),
		errors.Is(err, core.ErrDraftIncomplete):
		return http.StatusConflict
	case errors.Is(err, otp.ErrRateLimited), errors.Is(err, otp.ErrCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, otp.ErrDelivery):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed
	}
	return http.StatusInternalServerError
}

// respondError logs the technical error and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := mapError(err)

	log := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"code", userMsg.Code,
	)
	if statusCode >= http.StatusInternalServerError {
		log.Error("request error", "error", err.Error())
	} else {
		log.Warn("request rejected", "error", err.Error())
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		resp.Errors = verr.Fields
	}
	if statusCode == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, statusCode, resp)
}

// fail is respondError with the status derived from err.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, statusFor(err))
}
