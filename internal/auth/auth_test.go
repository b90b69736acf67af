package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/otp"
)

// ----------------------------------------------------------------------------
// Stubs
// ----------------------------------------------------------------------------

type stubAdmins struct {
	byEmail map[string]*Admin
	touched []string
}

func (s *stubAdmins) FindAdminByEmail(_ context.Context, email string) (*Admin, error) {
	return s.byEmail[email], nil
}

func (s *stubAdmins) CreateAdmin(_ context.Context, a Admin) (string, error) {
	a.ID = "admin-" + a.Email
	s.byEmail[a.Email] = &a
	return a.ID, nil
}

func (s *stubAdmins) TouchLastLogin(_ context.Context, id string, _ time.Time) error {
	s.touched = append(s.touched, id)
	return nil
}

type stubCodes struct {
	issued   []otp.Key
	verified []otp.Key
	code     string
}

func (s *stubCodes) Issue(_ context.Context, req otp.IssueRequest) error {
	s.issued = append(s.issued, req.Key)
	return nil
}

func (s *stubCodes) Verify(_ context.Context, key otp.Key, code string) (bool, error) {
	s.verified = append(s.verified, key)
	if len(s.issued) == 0 {
		return false, nil
	}
	return key == s.issued[len(s.issued)-1] && code == s.code, nil
}

func newTestService(t *testing.T) (*Service, *stubAdmins, *stubCodes) {
	t.Helper()
	admins := &stubAdmins{byEmail: map[string]*Admin{}}
	codes := &stubCodes{code: "123456"}
	svc := NewService(admins, codes, NewSigner([]byte("test-secret"), time.Hour))
	if _, err := svc.CreateAdmin(context.Background(), " Admin@DSWD.gov.ph ", "Admin", "correct horse battery"); err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}
	return svc, admins, codes
}

// ----------------------------------------------------------------------------
// Token Tests
// ----------------------------------------------------------------------------

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner([]byte("secret"), 30*time.Minute)
	tok, exp, err := s.Sign("u1", "a@b.ph")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v is in the past", exp)
	}

	claims, err := s.Parse(tok)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.UID != "u1" || claims.Email != "a@b.ph" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSigner_Rejects(t *testing.T) {
	s := NewSigner([]byte("secret"), time.Minute)
	tok, _, _ := s.Sign("u1", "a@b.ph")

	other := NewSigner([]byte("other"), time.Minute)
	if _, err := other.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret: err = %v, want ErrInvalidToken", err)
	}

	expired := NewSigner([]byte("secret"), time.Minute)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := expired.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: err = %v, want ErrInvalidToken", err)
	}

	if _, err := s.Parse("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: err = %v, want ErrInvalidToken", err)
	}
}

// ----------------------------------------------------------------------------
// Password Tests
// ----------------------------------------------------------------------------

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("HashPassword(short) err = %v, want ErrWeakPassword", err)
	}
	hash, err := HashPassword("long enough password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword(hash, "long enough password") {
		t.Error("CheckPassword(correct) = false")
	}
	if CheckPassword(hash, "wrong password!") {
		t.Error("CheckPassword(wrong) = true")
	}
}

// ----------------------------------------------------------------------------
// Sign-in Flow Tests
// ----------------------------------------------------------------------------

func TestLogin_IssuesCodeBoundToAdmin(t *testing.T) {
	svc, _, codes := newTestService(t)
	ctx := context.Background()

	if err := svc.Login(ctx, "admin@dswd.gov.ph", "correct horse battery", "10.0.0.1", "test"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if len(codes.issued) != 1 {
		t.Fatalf("issued = %d, want 1", len(codes.issued))
	}
	key := codes.issued[0]
	if key.Purpose != otp.PurposeAdminLogin || key.Binding != "admin-admin@dswd.gov.ph" {
		t.Errorf("key = %+v", key)
	}
}

func TestLogin_GenericFailure(t *testing.T) {
	svc, admins, codes := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@dswd.gov.ph", "correct horse battery"},
		{"wrong password", "admin@dswd.gov.ph", "wrong horse battery"},
		{"empty email", "", "correct horse battery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Login(ctx, tt.email, tt.password, "", "")
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Login() err = %v, want ErrInvalidCredentials", err)
			}
		})
	}

	admins.byEmail["admin@dswd.gov.ph"].Active = false
	if err := svc.Login(ctx, "admin@dswd.gov.ph", "correct horse battery", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive: err = %v, want ErrInvalidCredentials", err)
	}
	if len(codes.issued) != 0 {
		t.Errorf("issued = %d, want 0", len(codes.issued))
	}
}

func TestVerifyLogin(t *testing.T) {
	svc, admins, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Login(ctx, "admin@dswd.gov.ph", "correct horse battery", "", ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := svc.VerifyLogin(ctx, "admin@dswd.gov.ph", "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong code: err = %v, want ErrInvalidCredentials", err)
	}

	sess, err := svc.VerifyLogin(ctx, "ADMIN@dswd.gov.ph", "123456")
	if err != nil {
		t.Fatalf("VerifyLogin() error = %v", err)
	}
	claims, err := svc.Signer().Parse(sess.Token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.UID != sess.AdminID {
		t.Errorf("claims.UID = %q, want %q", claims.UID, sess.AdminID)
	}
	if len(admins.touched) != 1 {
		t.Errorf("touched = %v, want one entry", admins.touched)
	}
}

func TestVerifyLogin_UnknownAdminStillChecksCode(t *testing.T) {
	svc, admins, codes := newTestService(t)
	ctx := context.Background()

	if err := svc.Login(ctx, "admin@dswd.gov.ph", "correct horse battery", "", ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	admins.byEmail["admin@dswd.gov.ph"].Active = false

	for _, email := range []string{"nobody@dswd.gov.ph", "admin@dswd.gov.ph"} {
		codes.verified = nil
		if _, err := svc.VerifyLogin(ctx, email, "123456"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("VerifyLogin(%q) err = %v, want ErrInvalidCredentials", email, err)
		}
		if len(codes.verified) != 1 {
			t.Fatalf("VerifyLogin(%q) verify calls = %d, want 1", email, len(codes.verified))
		}
		if got := codes.verified[0].Binding; got != unknownAdminBinding {
			t.Errorf("VerifyLogin(%q) binding = %q, want %q", email, got, unknownAdminBinding)
		}
	}
	if len(admins.touched) != 0 {
		t.Errorf("touched = %v, want none", admins.touched)
	}
}

func TestCreateAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateAdmin(ctx, "admin@dswd.gov.ph", "", "another long password"); !errors.Is(err, ErrAdminExists) {
		t.Errorf("duplicate: err = %v, want ErrAdminExists", err)
	}
	if _, err := svc.CreateAdmin(ctx, "new@dswd.gov.ph", "", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("weak: err = %v, want ErrWeakPassword", err)
	}
	if _, err := svc.CreateAdmin(ctx, "not-an-email", "", "long enough password"); err == nil || !strings.Contains(err.Error(), "invalid admin email") {
		t.Errorf("bad email: err = %v", err)
	}
}
