// Package auth implements admin sign-in: a bcrypt password check followed
// by an emailed one-time code, exchanged for an HS256 session token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/otp"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, inactive
	// account and a failed code check alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAdminExists is returned by CreateAdmin for a taken email.
	ErrAdminExists = errors.New("admin already exists")
)

// Admin is a dashboard account.
type Admin struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// AdminStore persists admin accounts.
type AdminStore interface {
	// FindAdminByEmail returns nil, nil when no account matches.
	FindAdminByEmail(ctx context.Context, email string) (*Admin, error)
	CreateAdmin(ctx context.Context, a Admin) (string, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// CodeIssuer is the part of otp.Service used here.
type CodeIssuer interface {
	Issue(ctx context.Context, req otp.IssueRequest) error
	Verify(ctx context.Context, key otp.Key, code string) (bool, error)
}

// Session is the result of a completed sign-in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AdminID   string    `json:"admin_id"`
	Email     string    `json:"email"`
}

// Service runs the admin sign-in flow.
type Service struct {
	store  AdminStore
	codes  CodeIssuer
	signer *Signer
	now    func() time.Time
}

// NewService wires a Service.
func NewService(store AdminStore, codes CodeIssuer, signer *Signer) *Service {
	return &Service{
		store:  store,
		codes:  codes,
		signer: signer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Signer returns the token signer, for middleware.
func (s *Service) Signer() *Signer {
	return s.signer
}

// Login checks the password and emails a sign-in code bound to the admin id.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) error {
	admin, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	hash := dummyHash
	if admin != nil {
		hash = []byte(admin.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || admin == nil || !admin.Active {
		logging.WithFields(ctx, logging.Email(email)).Warn("admin login rejected")
		return ErrInvalidCredentials
	}

	return s.codes.Issue(ctx, otp.IssueRequest{
		Key:       adminKey(admin),
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

// VerifyLogin exchanges a sign-in code for a session token.
func (s *Service) VerifyLogin(ctx context.Context, email, code string) (*Session, error) {
	admin, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	// Unknown and inactive admins still run a code check against a key no
	// challenge is ever issued for, so both paths take a store round trip.
	key := otp.Key{Purpose: otp.PurposeAdminLogin, Email: normalizeEmail(email), Binding: unknownAdminBinding}
	if admin != nil && admin.Active {
		key = adminKey(admin)
	}

	ok, err := s.codes.Verify(ctx, key, code)
	if err != nil {
		return nil, err
	}
	if !ok || admin == nil || !admin.Active {
		return nil, ErrInvalidCredentials
	}

	tok, exp, err := s.signer.Sign(admin.ID, admin.Email)
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchLastLogin(ctx, admin.ID, s.now()); err != nil {
		logging.FromContext(ctx).Error("update admin last login", "error", err)
	}

	logging.WithFields(ctx, logging.Email(admin.Email)).Info("admin signed in", "admin_id", admin.ID)
	return &Session{Token: tok, ExpiresAt: exp, AdminID: admin.ID, Email: admin.Email}, nil
}

// CreateAdmin adds an active account.
func (s *Service) CreateAdmin(ctx context.Context, email, displayName, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("invalid admin email %q", email)
	}
	existing, err := s.store.FindAdminByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("find admin: %w", err)
	}
	if existing != nil {
		return "", ErrAdminExists
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	return s.store.CreateAdmin(ctx, Admin{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    s.now(),
	})
}

func (s *Service) lookup(ctx context.Context, email string) (*Admin, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}
	admin, err := s.store.FindAdminByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find admin: %w", err)
	}
	return admin, nil
}

// unknownAdminBinding never matches an admin id, which are UUIDs.
const unknownAdminBinding = "unknown-admin"

func adminKey(a *Admin) otp.Key {
	return otp.Key{Purpose: otp.PurposeAdminLogin, Email: a.Email, Binding: a.ID}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
