// Package core provides the survey intake and import business logic.
//
// # Error Codes Reference
//
// Technical errors are mapped to user-facing messages carrying a short code
// that staff can look up here. Sentinel errors are matched with errors.Is
// first; anything else is matched by substring against the lowercased error
// text, first match wins.
//
// # Database (DB)
//
//	DB001 - Duplicate response (ErrDuplicate, "duplicate key", "violates unique")
//	DB002 - Database unreachable ("connection refused")
//	DB003 - Connection interrupted ("connection reset")
//	DB004 - Database busy ("deadlock", "could not serialize")
//	DB005 - Operation timed out ("timeout")
//
// # Validation (VAL)
//
//	VAL001 - Submitted answers are invalid (*ValidationError)
//	VAL002 - Consent missing (ErrConsentRequired)
//	VAL003 - Wizard step out of order or draft incomplete
//	VAL004 - Email not verified (ErrEmailNotVerified)
//	VAL005 - Unknown report (ErrUnknownReport)
//	VAL006 - Survey session not found (ErrDraftNotFound)
//
// # File (FILE)
//
//	FILE001 - File too large ("file too large")
//	FILE002 - Not a CSV file ("not a csv")
//	FILE003 - No file provided ("no file provided")
//	FILE004 - Malformed CSV ("parse error", ErrLineTooLong)
//
// # Import (IMP)
//
//	IMP001 - Import slots busy (ErrTooManyImports)
//	IMP002 - Request cancelled (context.Canceled)
//	IMP003 - Request timed out (context.DeadlineExceeded)
//
// # One-time codes (OTP)
//
//	OTP001 - Resend cooldown (otp.ErrCooldown)
//	OTP002 - Email could not be delivered (otp.ErrDelivery)
//
// # Rate limiting (RATE)
//
//	RATE001 - Too many requests (otp.ErrRateLimited, "rate limit")
//
// # Default
//
//	ERR000 - Anything else; check the logs for the technical error.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/eteeap-survey/internal/otp"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMapping struct {
	target error
	msg    UserMessage
}

var sentinelMessages = []sentinelMapping{
	{ErrDuplicate, UserMessage{"A response for this person has already been recorded", "Contact the survey administrator if this is a mistake", "DB001"}},
	{ErrConsentRequired, UserMessage{"Consent is required to submit the survey", "Tick the consent box and try again", "VAL002"}},
	{ErrStepOutOfOrder, UserMessage{"Please complete the earlier survey steps first", "Go back to the first unanswered step", "VAL003"}},
	{ErrDraftIncomplete, UserMessage{"Some survey steps are not yet answered", "Go back to the first unanswered step", "VAL003"}},
	{ErrEmailNotVerified, UserMessage{"Your email address has not been verified", "Request a verification code and enter it", "VAL004"}},
	{ErrUnknownReport, UserMessage{"Unknown report", "Choose a report from the list", "VAL005"}},
	{ErrDraftNotFound, UserMessage{"Your survey session was not found or has expired", "Start the survey again", "VAL006"}},
	{ErrLineTooLong, UserMessage{"The file contains a line that is too long", "Check the file for a damaged or merged row", "FILE004"}},
	{ErrTooManyImports, UserMessage{"Other imports are still running", "Please wait a moment and try again", "IMP001"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "IMP002"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try a smaller file or try again later", "IMP003"}},
	{otp.ErrCooldown, UserMessage{"A code was sent recently", "Wait a minute before requesting another code", "OTP001"}},
	{otp.ErrDelivery, UserMessage{"The verification email could not be sent", "Check the address and try again later", "OTP002"}},
	{otp.ErrRateLimited, UserMessage{"Too many requests", "Please wait before trying again", "RATE001"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A response for this person has already been recorded", "Contact the survey administrator if this is a mistake", "DB001"}},
	{"violates unique", UserMessage{"A response for this person has already been recorded", "Contact the survey administrator if this is a mistake", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},
	{"could not serialize", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB005"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"not a csv", UserMessage{"Only CSV files can be imported", "Save the spreadsheet as CSV (UTF-8) and upload again", "FILE002"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to upload", "FILE003"}},
	{"parse error", UserMessage{"The file is not a valid CSV", "Ensure the file is comma-separated with matching quotes", "FILE004"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait before trying again", "RATE001"}},
}

var validationMessage = UserMessage{
	Message: "Some answers need attention",
	Action:  "Review the highlighted fields",
	Code:    "VAL001",
}

// defaultMessage is the ERR000 fallback.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return validationMessage
	}
	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err; it returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
