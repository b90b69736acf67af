package core

import "errors"

var (
	// ErrDuplicate means a completed response with the same normalized email
	// and full name already exists.
	ErrDuplicate = errors.New("duplicate response")

	// ErrUnknownReport is returned for report types missing from the registry.
	ErrUnknownReport = errors.New("unknown report type")

	// ErrDraftNotFound covers missing, expired and already submitted drafts.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrConsentRequired is returned when a submission lacks consent.
	ErrConsentRequired = errors.New("consent required")

	// ErrStepOutOfOrder is returned when a wizard step is saved before the
	// steps preceding it.
	ErrStepOutOfOrder = errors.New("survey step out of order")

	// ErrDraftIncomplete is returned when a draft is submitted with steps missing.
	ErrDraftIncomplete = errors.New("draft incomplete")

	// ErrEmailNotVerified is returned when verification is required and the
	// draft email has not been confirmed with a code.
	ErrEmailNotVerified = errors.New("email not verified")
)

// ValidationError carries per-field messages out of the service layer.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
