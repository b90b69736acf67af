package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/mail"
	"github.com/JonMunkholm/eteeap-survey/internal/ratelimit"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// Config tunes issuance and verification.
type Config struct {
	Secret      []byte
	TTL         time.Duration
	MaxAttempts int
	Cooldown    time.Duration

	// Issuance buckets, each counted per Window.
	IPEmailLimit int
	EmailLimit   int
	IPLimit      int
	Window       time.Duration

	AppName string
}

// DefaultConfig returns the production defaults with the given secret.
func DefaultConfig(secret []byte) Config {
	return Config{
		Secret:       secret,
		TTL:          10 * time.Minute,
		MaxAttempts:  5,
		Cooldown:     60 * time.Second,
		IPEmailLimit: 5,
		EmailLimit:   20,
		IPLimit:      60,
		Window:       time.Hour,
		AppName:      "ETEEAP Survey",
	}
}

// IssueRequest is the input to Issue.
type IssueRequest struct {
	Key       Key
	IPAddress string
	UserAgent string
}

// Service issues and verifies challenges.
type Service struct {
	store   Store
	limiter ratelimit.Limiter
	mailer  mail.Sender
	cfg     Config

	now   func() time.Time
	rand  io.Reader
	idGen func() string
}

// NewService wires a Service.
func NewService(store Store, limiter ratelimit.Limiter, mailer mail.Sender, cfg Config) *Service {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &Service{
		store:   store,
		limiter: limiter,
		mailer:  mailer,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		rand:    rand.Reader,
		idGen:   uuid.NewString,
	}
}

// Issue creates a new challenge for req.Key and emails the code.
func (s *Service) Issue(ctx context.Context, req IssueRequest) error {
	key := req.Key.Normalize()
	if !key.valid() {
		return ErrInvalidRequest
	}
	log := logging.WithFields(ctx, "purpose", string(key.Purpose), logging.Email(key.Email))

	// Cooldown first: a rejected resend must not spend rate limit quota.
	now := s.now()
	last, found, err := s.store.LastSentAt(ctx, key)
	if err != nil {
		return fmt.Errorf("read last otp send: %w", err)
	}
	if found && now.Sub(last) < s.cfg.Cooldown {
		return ErrCooldown
	}

	allowed, err := s.limiter.Allow(ctx, s.rules(key.Email, req.IPAddress)...)
	if err != nil {
		return fmt.Errorf("check otp rate limit: %w", err)
	}
	if !allowed {
		log.Warn("otp issue rate limited", "ip", req.IPAddress)
		return ErrRateLimited
	}

	code, err := s.generateCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	c := Challenge{
		ID:          s.idGen(),
		Key:         key,
		CodeHash:    hex.EncodeToString(s.digest(key, code)),
		ExpiresAt:   now.Add(s.cfg.TTL),
		MaxAttempts: s.cfg.MaxAttempts,
		CreatedAt:   now,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	}
	if err := s.store.Replace(ctx, c, s.cfg.Cooldown); err != nil {
		if errors.Is(err, ErrCooldown) {
			return ErrCooldown
		}
		return fmt.Errorf("store otp: %w", err)
	}

	if err := s.mailer.Send(ctx, s.message(key, code)); err != nil {
		if markErr := s.store.MarkDeliveryFailed(ctx, c.ID, s.now()); markErr != nil {
			log.Error("mark otp delivery failed", "error", markErr)
		}
		log.Error("otp delivery failed", "error", err)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	log.Info("otp issued", "challenge_id", c.ID, "expires_at", c.ExpiresAt)
	return nil
}

// Verify checks code against the newest active challenge for key. Any
// failure (no challenge, expired, exhausted, wrong code, malformed input)
// yields false; err is only set for storage failures.
func (s *Service) Verify(ctx context.Context, key Key, code string) (bool, error) {
	key = key.Normalize()
	code = digitsOnly(code)
	if !key.valid() || len(code) != codeDigits {
		return false, nil
	}

	want := s.digest(key, code)
	matched := false

	err := s.store.WithActive(ctx, key, func(c *Challenge) error {
		if c == nil {
			subtle.ConstantTimeCompare(want, make([]byte, sha256.Size))
			return nil
		}

		stored, decErr := hex.DecodeString(c.CodeHash)
		if decErr != nil {
			stored = make([]byte, sha256.Size)
		}
		equal := subtle.ConstantTimeCompare(want, stored) == 1

		now := s.now()
		if !now.Before(c.ExpiresAt) || c.Attempts >= c.MaxAttempts {
			return nil
		}
		if !equal {
			c.Attempts++
			return nil
		}
		c.ConsumedAt = &now
		matched = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("verify otp: %w", err)
	}

	logging.WithFields(ctx, "purpose", string(key.Purpose), logging.Email(key.Email)).
		Info("otp verify", "success", matched)
	return matched, nil
}

// Purge removes challenges that ended before cutoff.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.Purge(ctx, cutoff)
}

func (s *Service) rules(email, ip string) []ratelimit.Rule {
	w := s.cfg.Window
	rules := []ratelimit.Rule{
		{Key: "otp:email:" + email, Limit: s.cfg.EmailLimit, Window: w},
	}
	if ip != "" {
		rules = append(rules,
			ratelimit.Rule{Key: "otp:ipemail:" + ip + ":" + email, Limit: s.cfg.IPEmailLimit, Window: w},
			ratelimit.Rule{Key: "otp:ip:" + ip, Limit: s.cfg.IPLimit, Window: w},
		)
	}
	return rules
}

// generateCode returns a uniformly random zero-padded 6 digit code.
func (s *Service) generateCode() (string, error) {
	n, err := rand.Int(s.rand, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// digest binds the code to its key so a digest cannot be replayed across
// purposes or bindings.
func (s *Service) digest(key Key, code string) []byte {
	mac := hmac.New(sha256.New, s.cfg.Secret)
	mac.Write([]byte(string(key.Purpose) + "\x00" + key.Email + "\x00" + key.Binding + "\x00" + code))
	return mac.Sum(nil)
}

func (s *Service) message(key Key, code string) mail.Message {
	minutes := int(s.cfg.TTL / time.Minute)
	var subject, intro string
	switch key.Purpose {
	case PurposeAdminLogin:
		subject = s.cfg.AppName + " admin sign-in code"
		intro = "Use this code to finish signing in to the admin dashboard:"
	default:
		subject = s.cfg.AppName + " verification code"
		intro = "Use this code to verify your email address for the survey:"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n    %s\n\n", intro, code)
	fmt.Fprintf(&b, "The code expires in %d minutes and can be used once.\n", minutes)
	b.WriteString("If you did not request it, you can ignore this email.\n")

	return mail.Message{To: key.Email, Subject: subject, Body: b.String()}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsRetryable reports whether err is a throttling error the caller can retry later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCooldown)
}
