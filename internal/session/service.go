package session

import (
	"context"
	"errors"
	"fmt"

	"squire.sh/internal/credential"
	"squire.sh/internal/identity"
	"squire.sh/internal/mail"
	"squire.sh/internal/token"
)

// ActionPasswordChange scopes password-reset OTPs. A code issued for
// this action cannot be redeemed for any other purpose.
const ActionPasswordChange = "password_change"

// TokenPair is the persisted token response shape.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Service is the session facade: the login state machine, the
// password-reset flow and user resolution. Each call runs against its
// own scoped store operations; nothing is cached across requests.
type Service struct {
	store  identity.Store
	tokens *token.Engine
	otps   *credential.Engine
	mailer mail.Mailer
}

// NewService wires the facade. The mailer may be nil when password
// reset by mail is not deployed; the reset-request flow then fails
// with ErrUnavailable.
func NewService(store identity.Store, tokens *token.Engine, otps *credential.Engine, mailer mail.Mailer) (*Service, error) {
	if store == nil {
		return nil, errors.New("session: identity store is required")
	}
	if tokens == nil {
		return nil, errors.New("session: token engine is required")
	}
	if otps == nil {
		return nil, errors.New("session: credential engine is required")
	}
	return &Service{store: store, tokens: tokens, otps: otps, mailer: mailer}, nil
}

// Login authenticates a username/password pair, records the attempt in
// the login history and mints an access/refresh token pair keyed to
// the username. The audit row is appended for both outcomes before any
// failure is reported; only an unknown username leaves no row, since
// there is no user to attach it to.
func (s *Service) Login(ctx context.Context, username, password, clientIP, userAgent string) (TokenPair, error) {
	user, err := s.store.Users().FindBy(ctx, identity.ByUsername(username))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}

	attempt := &identity.Login{
		IPAddress: clientIP,
		UserAgent: userAgent,
		UserID:    user.ID,
	}
	ok := credential.VerifyPassword(user, password)
	attempt.Failed = !ok
	if err := s.store.Logins().Append(ctx, attempt); err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, ErrUnauthorized
	}
	return s.mintPair(user.Username)
}

// Refresh verifies a refresh token, re-resolves the user, re-checks the
// disabled flag and mints a fresh pair. Refresh tokens are not
// single-use; no rotation bookkeeping is kept.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	subject, err := s.tokens.Verify(refreshToken, token.ContextRefresh)
	if err != nil {
		return TokenPair{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindBy(ctx, identity.ByUsername(subject))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if user.Disabled {
		return TokenPair{}, ErrUnauthorized
	}
	return s.mintPair(user.Username)
}

// CurrentUser resolves an authenticated principal and rejects disabled
// accounts, regardless of how valid their token still is.
func (s *Service) CurrentUser(ctx context.Context, lookup identity.Lookup) (*identity.User, error) {
	user, err := s.store.Users().FindBy(ctx, lookup)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Disabled {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// RequestPasswordReset issues a password-change OTP for the account
// with the given email and mails both codes to the user's primary
// address.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.Users().FindBy(ctx, identity.ByEmail(email))
	if err != nil {
		return err
	}
	otp, err := s.otps.GenerateOTP(ctx, user, ActionPasswordChange)
	if err != nil {
		if errors.Is(err, credential.ErrCodeSpaceExhausted) {
			return fmt.Errorf("%w: could not allocate reset codes", ErrUnavailable)
		}
		return err
	}
	if s.mailer == nil {
		return fmt.Errorf("%w: mail delivery is not configured", ErrUnavailable)
	}
	msg := mail.Message{
		Recipient: user.Email,
		Subject:   "Squire password reset request",
		Text: fmt.Sprintf("You have requested a password change.\n\nRequest Code: %s\nRevoke Code: %s\n",
			otp.AuthorizationCode, otp.RevokeCode),
		HTML: fmt.Sprintf(`<html><body><p>You have requested a password change.</p>
<p>Request Code: %s<br/><br/>Revoke Code: %s</p></body></html>`,
			otp.AuthorizationCode, otp.RevokeCode),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: cannot send otp to email", ErrUnavailable)
	}
	return nil
}

// ResetPassword redeems a password-change OTP, verifies the old
// password and persists a fresh hash. The OTP is consumed even when
// the old password turns out to be wrong; the user must request a new
// code.
func (s *Service) ResetPassword(ctx context.Context, authorizationCode, oldPassword, newPassword string) error {
	user, err := s.otps.ConsumeOTP(ctx, authorizationCode, ActionPasswordChange)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidCode) {
			return ErrUnauthorized
		}
		return err
	}
	if !credential.VerifyPassword(user, oldPassword) {
		return ErrUnauthorized
	}
	if err := credential.SetPassword(user, newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.Users().UpdatePassword(ctx, user.ID, user.PasswordHash)
}

// Revoke invalidates an outstanding OTP by its revoke code.
func (s *Service) Revoke(ctx context.Context, revokeCode string) error {
	return s.otps.RevokeOTP(ctx, revokeCode)
}

// LoginHistory returns the user's login audit rows, newest first.
func (s *Service) LoginHistory(ctx context.Context, user *identity.User) ([]*identity.Login, error) {
	return s.store.Logins().ListByUser(ctx, user.ID)
}

// IssuePair mints a fresh access/refresh pair for an already
// authenticated user. Used in gateway-delegated deployments where the
// local token decode path is bypassed.
func (s *Service) IssuePair(user *identity.User) (TokenPair, error) {
	if user == nil {
		return TokenPair{}, ErrUnauthorized
	}
	return s.mintPair(user.Username)
}

func (s *Service) mintPair(username string) (TokenPair, error) {
	access, _, err := s.tokens.Mint(username, token.ContextAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.tokens.Mint(username, token.ContextRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}
