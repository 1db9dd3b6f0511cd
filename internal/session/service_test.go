package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"squire.sh/internal/credential"
	"squire.sh/internal/identity"
	"squire.sh/internal/mail"
	"squire.sh/internal/token"
)

type captureMailer struct {
	sent []mail.Message
	fail bool
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	if m.fail {
		return mail.ErrDelivery
	}
	m.sent = append(m.sent, msg)
	return nil
}

type env struct {
	store  *identity.MemStore
	tokens *token.Engine
	otps   *credential.Engine
	mailer *captureMailer
	svc    *Service
	user   *identity.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := identity.NewMemStore()
	tokens, err := token.NewEngine("access-secret", "refresh-secret")
	if err != nil {
		t.Fatalf("token engine: %v", err)
	}
	otps := credential.NewEngine(store)
	mailer := &captureMailer{}
	svc, err := NewService(store, tokens, otps, mailer)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	user := &identity.User{Username: "alice", Email: "alice@example.com"}
	if err := credential.SetPassword(user, "correct-horse"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	return &env{store: store, tokens: tokens, otps: otps, mailer: mailer, svc: svc, user: user}
}

func (e *env) history(t *testing.T) []*identity.Login {
	t.Helper()
	logins, err := e.store.Logins().ListByUser(context.Background(), e.user.ID)
	if err != nil {
		t.Fatalf("list logins: %v", err)
	}
	return logins
}

func TestLoginSuccess(t *testing.T) {
	e := newEnv(t)

	pair, err := e.svc.Login(context.Background(), "alice", "correct-horse", "10.0.0.1", "curl/8")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token pair")
	}
	if pair.TokenType != "bearer" {
		t.Fatalf("token type %q, want bearer", pair.TokenType)
	}

	subject, err := e.tokens.Verify(pair.AccessToken, token.ContextAccess)
	if err != nil || subject != "alice" {
		t.Fatalf("access token: subject %q, err %v", subject, err)
	}
	if _, err := e.tokens.Verify(pair.RefreshToken, token.ContextRefresh); err != nil {
		t.Fatalf("refresh token: %v", err)
	}

	logins := e.history(t)
	if len(logins) != 1 {
		t.Fatalf("login rows: %d, want 1", len(logins))
	}
	if logins[0].Failed {
		t.Fatal("successful login recorded as failed")
	}
	if logins[0].IPAddress != "10.0.0.1" || logins[0].UserAgent != "curl/8" {
		t.Fatalf("login row metadata: %+v", logins[0])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Login(context.Background(), "alice", "wrong", "10.0.0.1", "curl/8")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}

	logins := e.history(t)
	if len(logins) != 1 {
		t.Fatalf("login rows: %d, want 1", len(logins))
	}
	if !logins[0].Failed {
		t.Fatal("failed attempt recorded as success")
	}
}

func TestLoginUnknownUsername(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Login(context.Background(), "mallory", "whatever", "10.0.0.1", "curl/8")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	// Unknown usernames are reported with the same error as a wrong
	// password and leave no audit row.
	if rows := e.history(t); len(rows) != 0 {
		t.Fatalf("unexpected audit rows: %d", len(rows))
	}
}

func TestRefresh(t *testing.T) {
	e := newEnv(t)

	pair, err := e.svc.Login(context.Background(), "alice", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := e.svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		t.Fatal("empty refreshed pair")
	}

	// An access token must not pass as a refresh credential.
	if _, err := e.svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("access token refreshed: %v", err)
	}
}

func TestRefreshDisabledUser(t *testing.T) {
	e := newEnv(t)

	pair, err := e.svc.Login(context.Background(), "alice", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	disabled := true
	if _, err := e.store.Users().Update(context.Background(), "alice", identity.UserUpdate{Disabled: &disabled}); err != nil {
		t.Fatalf("disable user: %v", err)
	}

	if _, err := e.svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disabled user refreshed: %v", err)
	}
}

func TestCurrentUserDisabled(t *testing.T) {
	e := newEnv(t)

	if _, err := e.svc.CurrentUser(context.Background(), identity.ByUsername("alice")); err != nil {
		t.Fatalf("current user: %v", err)
	}

	disabled := true
	if _, err := e.store.Users().Update(context.Background(), "alice", identity.UserUpdate{Disabled: &disabled}); err != nil {
		t.Fatalf("disable user: %v", err)
	}
	if _, err := e.svc.CurrentUser(context.Background(), identity.ByUsername("alice")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disabled user resolved: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if len(e.mailer.sent) != 1 {
		t.Fatalf("mails sent: %d, want 1", len(e.mailer.sent))
	}
	msg := e.mailer.sent[0]
	if msg.Recipient != "alice@example.com" {
		t.Fatalf("recipient %q", msg.Recipient)
	}
	if !strings.Contains(msg.Text, "Request Code:") || !strings.Contains(msg.Text, "Revoke Code:") {
		t.Fatalf("mail body missing codes:\n%s", msg.Text)
	}

	code := extractCode(t, msg.Text, "Request Code: ")
	if err := e.svc.ResetPassword(ctx, code, "correct-horse", "new-password-1"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	if _, err := e.svc.Login(ctx, "alice", "correct-horse", "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := e.svc.Login(ctx, "alice", "new-password-1", "", ""); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// The code is single-use.
	if err := e.svc.ResetPassword(ctx, code, "new-password-1", "another"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("code redeemed twice: %v", err)
	}
}

func TestResetPasswordWrongOldPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	code := extractCode(t, e.mailer.sent[0].Text, "Request Code: ")

	if err := e.svc.ResetPassword(ctx, code, "not-the-old-one", "new-password-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	// The code was consumed by the failed attempt.
	if err := e.svc.ResetPassword(ctx, code, "correct-horse", "new-password-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("consumed code redeemed: %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	e := newEnv(t)
	err := e.svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRequestPasswordResetMailFailure(t *testing.T) {
	e := newEnv(t)
	e.mailer.fail = true
	err := e.svc.RequestPasswordReset(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestRequestPasswordResetNoMailer(t *testing.T) {
	e := newEnv(t)
	svc, err := NewService(e.store, e.tokens, e.otps, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.RequestPasswordReset(context.Background(), "alice@example.com"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestRevoke(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	body := e.mailer.sent[0].Text
	authCode := extractCode(t, body, "Request Code: ")
	revokeCode := extractCode(t, body, "Revoke Code: ")

	if err := e.svc.Revoke(ctx, revokeCode); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := e.svc.ResetPassword(ctx, authCode, "correct-horse", "new-password-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked code redeemed: %v", err)
	}
}

func TestLoginHistoryOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Login(ctx, "alice", "wrong", "10.0.0.1", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("login: %v", err)
	}
	if _, err := e.svc.Login(ctx, "alice", "correct-horse", "10.0.0.2", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	logins, err := e.svc.LoginHistory(ctx, e.user)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(logins) != 2 {
		t.Fatalf("rows: %d, want 2", len(logins))
	}
}

func extractCode(t *testing.T, body, label string) string {
	t.Helper()
	idx := strings.Index(body, label)
	if idx < 0 {
		t.Fatalf("label %q not found in:\n%s", label, body)
	}
	rest := body[idx+len(label):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}
