package credential

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"squire.sh/internal/identity"
)

const (
	codeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	otpTTL             = 24 * time.Hour
	maxGenerateRetries = 5
)

var (
	// ErrInvalidCode indicates an unknown, expired or wrongly scoped
	// authorization code.
	ErrInvalidCode = errors.New("credential: invalid authorization code")
	// ErrCodeSpaceExhausted indicates repeated uniqueness collisions
	// while persisting freshly generated codes.
	ErrCodeSpaceExhausted = errors.New("credential: could not allocate unique codes")
)

// Engine issues and redeems single-use action tokens.
type Engine struct {
	store identity.Store
	now   func() time.Time
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithClock overrides the time source, useful for tests.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs an Engine backed by the given store.
func NewEngine(store identity.Store, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateOTP creates a single-use token for the given user and action
// and persists it. On a uniqueness collision both codes are regenerated
// and the insert retried, at most maxGenerateRetries times; exhaustion
// surfaces as ErrCodeSpaceExhausted.
func (e *Engine) GenerateOTP(ctx context.Context, user *identity.User, action string) (*identity.OTP, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("credential: user is required")
	}
	if action == "" {
		return nil, errors.New("credential: action is required")
	}
	for attempt := 0; attempt < maxGenerateRetries; attempt++ {
		authCode, err := randomCode(codeLength)
		if err != nil {
			return nil, err
		}
		revokeCode, err := randomCode(codeLength)
		if err != nil {
			return nil, err
		}
		otp := &identity.OTP{
			AuthorizationCode: authCode,
			RevokeCode:        revokeCode,
			Action:            action,
			ValidTill:         e.now().UTC().Add(otpTTL),
			UserID:            user.ID,
		}
		err = e.store.OTPs().Create(ctx, otp)
		if err == nil {
			return otp, nil
		}
		if !errors.Is(err, identity.ErrConflict) {
			return nil, err
		}
	}
	return nil, ErrCodeSpaceExhausted
}

// ConsumeOTP redeems an authorization code scoped to the expected
// action and returns the owning user. The code is deleted on success
// and also when it has expired, so a stale code cannot be retried.
func (e *Engine) ConsumeOTP(ctx context.Context, authorizationCode, expectedAction string) (*identity.User, error) {
	otp, err := e.store.OTPs().FindByAuthorizationCode(ctx, authorizationCode)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	if otp.Action != expectedAction {
		return nil, ErrInvalidCode
	}
	if e.now().UTC().After(otp.ValidTill) {
		_ = e.store.OTPs().Delete(ctx, otp.AuthorizationCode)
		return nil, ErrInvalidCode
	}
	if err := e.store.OTPs().Delete(ctx, otp.AuthorizationCode); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// Lost the race against a concurrent redemption.
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	user, err := e.store.Users().Find(ctx, otp.UserID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RevokeOTP deletes a token by its revoke code.
func (e *Engine) RevokeOTP(ctx context.Context, revokeCode string) error {
	return e.store.OTPs().DeleteByRevokeCode(ctx, revokeCode)
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("credential: generate code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
