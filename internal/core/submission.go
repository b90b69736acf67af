package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// Submission is a complete survey as posted by a client.
type Submission struct {
	Record       survey.Record
	ConsentGiven bool
	SessionToken string
	Source       string
}

// SubmitSurvey validates and stores a completed survey and returns the new
// response id.
//
// Errors: ErrConsentRequired, *ValidationError, ErrDuplicate, or a wrapped
// persistence error.
func (s *Service) SubmitSurvey(ctx context.Context, sub Submission) (string, error) {
	if !sub.ConsentGiven {
		return "", ErrConsentRequired
	}

	clean, errs := survey.ValidateAll(sub.Record)
	if !errs.Empty() {
		return "", &ValidationError{Fields: errs}
	}
	clean.Set(survey.FieldConsentGiven, "yes")

	resp := NewResponse{
		Record:          clean,
		ConsentGiven:    true,
		EmailNormalized: clean.Get(survey.FieldEmail),
		FullNameKey:     survey.FullNameKey(clean),
		Source:          sub.Source,
		SessionToken:    sub.SessionToken,
		CompletedAt:     s.now(),
	}
	if resp.Source == "" {
		resp.Source = SourceAPI
	}

	exists, err := s.stores.Responses.ResponseExists(ctx, resp.EmailNormalized, resp.FullNameKey)
	if err != nil {
		return "", fmt.Errorf("check duplicate response: %w", err)
	}
	if exists {
		return "", ErrDuplicate
	}

	tx, err := s.stores.Responses.BeginResponses(ctx)
	if err != nil {
		return "", fmt.Errorf("begin submission: %w", err)
	}
	id, err := tx.InsertResponse(ctx, resp)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, ErrDuplicate) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("insert response: %w", err)
	}
	if sub.SessionToken != "" {
		if err := tx.CompleteDraft(ctx, sub.SessionToken, resp.CompletedAt); err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("complete draft: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit submission: %w", err)
	}

	logging.WithFields(ctx, "response_id", id, "source", resp.Source).
		Info("survey submitted", logging.Email(resp.EmailNormalized))
	return id, nil
}
