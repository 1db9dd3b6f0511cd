package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken indicates a token that failed decoding, signature or
// expiry validation, or was presented under the wrong context.
var ErrInvalidToken = errors.New("token: invalid token")

// Context names a signing context. Access and refresh tokens are signed
// with independent secrets and lifetimes; the caller always states the
// expected context explicitly, it is never inferred from the token.
type Context string

const (
	ContextAccess  Context = "access"
	ContextRefresh Context = "refresh"
)

const defaultIssuer = "squire"

// Engine is a state-free mint/verify pair over the two signing
// contexts.
type Engine struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// Claims are the JWT claims carried by both token kinds.
type Claims struct {
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(e *Engine) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			e.issuer = issuer
		}
	}
}

// WithAccessTTL configures the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source, useful for tests.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs an Engine from the two context secrets.
func NewEngine(secretKey, refreshKey string, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(secretKey) == "" || strings.TrimSpace(refreshKey) == "" {
		return nil, errors.New("token: both signing secrets are required")
	}
	e := &Engine{
		accessKey:  []byte(secretKey),
		refreshKey: []byte(refreshKey),
		accessTTL:  30 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		issuer:     defaultIssuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Mint signs a token for the subject under the given context.
func (e *Engine) Mint(subject string, tc Context) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	key, ttl, err := e.contextParams(tc)
	if err != nil {
		return "", time.Time{}, err
	}

	now := e.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		TokenUse: string(tc),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify validates signature and expiry for the given context and
// returns the token subject. A structurally valid token presented
// under the wrong context fails with ErrInvalidToken.
func (e *Engine) Verify(tokenString string, tc Context) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	key, _, err := e.contextParams(tc)
	if err != nil {
		return "", err
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return key, nil
	}, jwt.WithTimeFunc(func() time.Time { return e.now().UTC() }))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.TokenUse != string(tc) {
		return "", ErrInvalidToken
	}
	if claims.Issuer != e.issuer {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

func (e *Engine) contextParams(tc Context) ([]byte, time.Duration, error) {
	switch tc {
	case ContextAccess:
		return e.accessKey, e.accessTTL, nil
	case ContextRefresh:
		return e.refreshKey, e.refreshTTL, nil
	default:
		return nil, 0, errors.New("token: unknown signing context")
	}
}
