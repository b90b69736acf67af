// Package otp issues and verifies emailed one-time codes.
//
// A challenge is bound to a Key: purpose, normalized email and a binding
// (the survey draft token for survey_verify, the admin user id for
// admin_login). Only the newest unconsumed challenge for a key is ever
// checked. Codes are stored as HMAC-SHA256 digests keyed with a server
// secret; the raw code exists only in memory and in the outgoing email.
package otp

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Purpose distinguishes the flows that use one-time codes.
type Purpose string

const (
	PurposeSurveyVerify Purpose = "survey_verify"
	PurposeAdminLogin   Purpose = "admin_login"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeSurveyVerify || p == PurposeAdminLogin
}

var (
	// ErrRateLimited is returned when any issuance bucket is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCooldown is returned when a code was sent too recently for the key.
	ErrCooldown = errors.New("otp resend cooldown active")

	// ErrDelivery wraps mail transport failures.
	ErrDelivery = errors.New("otp delivery failed")

	// ErrInvalidRequest is returned for a malformed purpose, email or binding.
	ErrInvalidRequest = errors.New("invalid otp request")
)

// Key identifies the subject of a challenge.
type Key struct {
	Purpose Purpose
	Email   string
	Binding string
}

// Normalize lowercases and trims the email and trims the binding.
func (k Key) Normalize() Key {
	return Key{
		Purpose: k.Purpose,
		Email:   strings.ToLower(strings.TrimSpace(k.Email)),
		Binding: strings.TrimSpace(k.Binding),
	}
}

func (k Key) valid() bool {
	if !k.Purpose.Valid() || k.Binding == "" || len(k.Email) > 254 {
		return false
	}
	at := strings.LastIndex(k.Email, "@")
	return at > 0 && at < len(k.Email)-1
}

// Challenge is one issued code.
type Challenge struct {
	ID             string
	Key            Key
	CodeHash       string // hex HMAC-SHA256
	ExpiresAt      time.Time
	Attempts       int
	MaxAttempts    int
	ConsumedAt     *time.Time
	DeliveryFailed bool
	CreatedAt      time.Time
	IPAddress      string
	UserAgent      string
}

// Active reports whether c can still be verified at now.
func (c *Challenge) Active(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt) && c.Attempts < c.MaxAttempts
}

// Store persists challenges.
type Store interface {
	// LastSentAt returns the creation time of the newest challenge for key
	// whose email was delivered.
	LastSentAt(ctx context.Context, key Key) (time.Time, bool, error)

	// Replace marks every unconsumed challenge for c.Key consumed and
	// inserts c, in one transaction serialized per key. It returns
	// ErrCooldown without writing when a delivered challenge for the key
	// was created less than cooldown before c.CreatedAt.
	Replace(ctx context.Context, c Challenge, cooldown time.Duration) error

	// MarkDeliveryFailed consumes the challenge and flags it as undelivered.
	MarkDeliveryFailed(ctx context.Context, id string, at time.Time) error

	// WithActive locks the newest unconsumed challenge for key, calls fn
	// with it (nil when there is none) and persists Attempts and ConsumedAt
	// as fn left them, in one transaction.
	WithActive(ctx context.Context, key Key, fn func(c *Challenge) error) error

	// Purge deletes challenges that were consumed or expired before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
