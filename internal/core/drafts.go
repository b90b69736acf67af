package core

// drafts.go drives the multi-step survey wizard.
//
// A draft is created when the respondent opens the survey and is keyed by an
// opaque token kept in the session cookie. Each step is validated with the
// same section validator the import uses and stored sanitized. CurrentStep is
// a watermark: a step may be saved again at any time, but never more than one
// step past the furthest completed one.

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// StartDraft opens a new wizard draft.
func (s *Service) StartDraft(ctx context.Context) (*Draft, error) {
	now := s.now()
	d := Draft{
		Token:     s.idGen(),
		Data:      make(map[string]survey.Record),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cfg.draftTTL()),
	}
	if err := s.stores.Drafts.CreateDraft(ctx, d); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	return &d, nil
}

// GetDraft loads a resumable draft. Missing, expired and submitted drafts
// all return ErrDraftNotFound.
func (s *Service) GetDraft(ctx context.Context, token string) (*Draft, error) {
	if token == "" {
		return nil, ErrDraftNotFound
	}
	d, err := s.stores.Drafts.GetDraft(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if d == nil || d.CompletedAt != nil || !s.now().Before(d.ExpiresAt) {
		return nil, ErrDraftNotFound
	}
	if d.Data == nil {
		d.Data = make(map[string]survey.Record)
	}
	return d, nil
}

// SaveStep validates one section and stores it on the draft.
func (s *Service) SaveStep(ctx context.Context, token string, section survey.Section, in survey.Record) (*Draft, error) {
	idx := survey.StepIndex(section)
	if idx == 0 {
		return nil, &ValidationError{Fields: map[string][]string{
			"section": {fmt.Sprintf("unknown section %q", section)},
		}}
	}

	d, err := s.GetDraft(ctx, token)
	if err != nil {
		return nil, err
	}
	if idx > d.CurrentStep+1 {
		return nil, ErrStepOutOfOrder
	}

	clean, errs := survey.ValidateSection(section, in)
	if !errs.Empty() {
		return nil, &ValidationError{Fields: errs}
	}

	if section == survey.SectionBasicInfo && clean.Get(survey.FieldEmail) != d.VerifiedEmail {
		d.VerifiedEmail = ""
	}
	if section == survey.SectionConsent {
		d.ConsentGiven = true
	}
	d.Data[string(section)] = clean
	if idx > d.CurrentStep {
		d.CurrentStep = idx
	}

	now := s.now()
	d.UpdatedAt = now
	d.ExpiresAt = now.Add(s.cfg.draftTTL())
	if err := s.stores.Drafts.SaveDraft(ctx, *d); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return d, nil
}

// RequestEmailCode sends a survey verification code to the draft's email.
func (s *Service) RequestEmailCode(ctx context.Context, token, ip, userAgent string) error {
	if s.verifier == nil {
		return fmt.Errorf("email verification is not configured")
	}
	d, err := s.GetDraft(ctx, token)
	if err != nil {
		return err
	}
	email := d.Email()
	if email == "" {
		return &ValidationError{Fields: map[string][]string{
			survey.FieldEmail: {"Complete the basic information step first."},
		}}
	}
	return s.verifier.Issue(ctx, otp.IssueRequest{
		Key:       otp.Key{Purpose: otp.PurposeSurveyVerify, Email: email, Binding: d.Token},
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

// VerifyEmailCode checks a code against the draft's email and, on success,
// records the email as verified.
func (s *Service) VerifyEmailCode(ctx context.Context, token, code string) (bool, error) {
	if s.verifier == nil {
		return false, fmt.Errorf("email verification is not configured")
	}
	d, err := s.GetDraft(ctx, token)
	if err != nil {
		return false, err
	}
	email := d.Email()
	if email == "" {
		return false, nil
	}
	ok, err := s.verifier.Verify(ctx, otp.Key{Purpose: otp.PurposeSurveyVerify, Email: email, Binding: d.Token}, code)
	if err != nil || !ok {
		return false, err
	}

	d.VerifiedEmail = email
	d.UpdatedAt = s.now()
	if err := s.stores.Drafts.SaveDraft(ctx, *d); err != nil {
		return false, fmt.Errorf("save draft: %w", err)
	}
	return true, nil
}

// SubmitDraft finalizes a draft through SubmitSurvey.
func (s *Service) SubmitDraft(ctx context.Context, token string) (string, error) {
	d, err := s.GetDraft(ctx, token)
	if err != nil {
		return "", err
	}
	for _, step := range survey.WizardSteps {
		if _, ok := d.Data[string(step)]; !ok {
			return "", fmt.Errorf("%w: %s not completed", ErrDraftIncomplete, step)
		}
	}
	if s.cfg.RequireEmailVerification && (d.VerifiedEmail == "" || d.VerifiedEmail != d.Email()) {
		return "", ErrEmailNotVerified
	}

	rec := survey.NewRecord()
	for _, step := range survey.FormSections {
		rec.Merge(d.Data[string(step)])
	}
	return s.SubmitSurvey(ctx, Submission{
		Record:       rec,
		ConsentGiven: d.ConsentGiven,
		SessionToken: d.Token,
		Source:       SourceWeb,
	})
}
