package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"squire.sh/internal/authz"
	"squire.sh/internal/config"
	"squire.sh/internal/credential"
	"squire.sh/internal/identity"
	"squire.sh/internal/mail"
	"squire.sh/internal/session"
	"squire.sh/internal/token"
)

type captureMailer struct {
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	store   *identity.MemStore
	mailer  *captureMailer
}

// newTestAPI seeds an admin holding the wildcard policy ("root") and a
// plain user without a role ("alice").
func newTestAPI(t *testing.T, mode string) *apiClient {
	t.Helper()
	ctx := context.Background()
	store := identity.NewMemStore()

	adminRole := &identity.Role{Title: "Admin"}
	if err := store.Roles().Create(ctx, adminRole); err != nil {
		t.Fatalf("create role: %v", err)
	}
	anyRes := &identity.Resource{Name: "*"}
	if err := store.Resources().Create(ctx, anyRes); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	anyPerm := &identity.Permission{Action: "*", ResourceID: anyRes.ID}
	if err := store.Permissions().Create(ctx, anyPerm); err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if err := store.Policies().Create(ctx, &identity.Policy{
		Name: "admin", PermissionID: anyPerm.ID, RoleID: adminRole.ID,
	}); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	mkUser := func(username, email, password, roleID string) {
		u := &identity.User{Username: username, Email: email, RoleID: roleID}
		if err := credential.SetPassword(u, password); err != nil {
			t.Fatalf("set password: %v", err)
		}
		if err := store.Users().Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	mkUser("root", "root@example.com", "root-pass", adminRole.ID)
	mkUser("alice", "alice@example.com", "alice-pass", "")

	tokens, err := token.NewEngine("access-secret", "refresh-secret")
	if err != nil {
		t.Fatalf("token engine: %v", err)
	}
	otps := credential.NewEngine(store)
	mailer := &captureMailer{}
	svc, err := session.NewService(store, tokens, otps, mailer)
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	admin, err := session.NewAdmin(store)
	if err != nil {
		t.Fatalf("admin service: %v", err)
	}

	api := New(Options{
		Session:       svc,
		Admin:         admin,
		Authorizer:    authz.NewEngine(store),
		Tokens:        tokens,
		AuthMode:      mode,
		Version:       "test",
		RateBurst:     1000,
		RatePerSecond: 1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		store:   store,
		mailer:  mailer,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) login(username, password string) session.TokenPair {
	c.t.Helper()
	resp := c.post("/auth/token", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
	pair := decode[session.TokenPair](c.t, resp)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		c.t.Fatal("incomplete token pair")
	}
	return pair
}

func bearerHeader(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != code {
		t.Fatalf("status %d, want %d", resp.StatusCode, code)
	}
}

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	resp := c.get("/healthz", nil)
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("healthz: %v", body)
	}

	wantStatus(t, c.get("/readyz", nil), http.StatusOK)
}

func TestLoginJSON(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	pair := c.login("alice", "alice-pass")
	if pair.TokenType != "bearer" {
		t.Fatalf("token type %q", pair.TokenType)
	}
}

func TestLoginForm(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	form := url.Values{"username": {"alice"}, "password": {"alice-pass"}}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	wantStatus(t, resp, http.StatusOK)
}

func TestLoginFailureIsGeneric(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	for _, creds := range [][2]string{
		{"alice", "wrong-pass"},
		{"nobody", "whatever"},
	} {
		resp := c.post("/auth/token", map[string]string{
			"username": creds[0], "password": creds[1],
		}, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status %d, want 401", creds[0], resp.StatusCode)
		}
		body := decode[map[string]any](t, resp)
		msg, _ := body["error"].(string)
		if !strings.Contains(msg, "incorrect username or password") {
			t.Fatalf("%s: leaky error %q", creds[0], msg)
		}
	}
}

func TestLoginValidation(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	wantStatus(t, c.post("/auth/token", map[string]string{"username": "alice"}, nil), http.StatusBadRequest)
	wantStatus(t, c.get("/auth/token", nil), http.StatusMethodNotAllowed)
}

func TestCurrentUser(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	pair := c.login("alice", "alice-pass")

	resp := c.get("/auth/", bearerHeader(pair.AccessToken))
	user := decode[identity.User](t, resp)
	if user.Username != "alice" {
		t.Fatalf("username %q", user.Username)
	}

	wantStatus(t, c.get("/auth/", nil), http.StatusUnauthorized)
	wantStatus(t, c.get("/auth/", bearerHeader("garbage")), http.StatusUnauthorized)
	// A refresh token is not an access credential.
	wantStatus(t, c.get("/auth/", bearerHeader(pair.RefreshToken)), http.StatusUnauthorized)
}

func TestRefresh(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	pair := c.login("alice", "alice-pass")

	resp := c.get("/auth/token/refresh", bearerHeader(pair.RefreshToken))
	next := decode[session.TokenPair](t, resp)
	if next.AccessToken == "" {
		t.Fatal("empty refreshed access token")
	}

	wantStatus(t, c.get("/auth/token/refresh", bearerHeader(pair.AccessToken)), http.StatusUnauthorized)
	wantStatus(t, c.get("/auth/token/refresh", nil), http.StatusUnauthorized)
}

func TestPrivileged(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	rootPair := c.login("root", "root-pass")
	wantStatus(t, c.get("/auth/privileged", bearerHeader(rootPair.AccessToken)), http.StatusOK)

	alicePair := c.login("alice", "alice-pass")
	wantStatus(t, c.get("/auth/privileged", bearerHeader(alicePair.AccessToken)), http.StatusForbidden)

	wantStatus(t, c.get("/auth/privileged", nil), http.StatusUnauthorized)
}

func TestLoginHistory(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	// One failure, then a success.
	wantStatus(t, c.post("/auth/token", map[string]string{
		"username": "alice", "password": "nope",
	}, nil), http.StatusUnauthorized)
	pair := c.login("alice", "alice-pass")

	resp := c.get("/auth/history", bearerHeader(pair.AccessToken))
	logins := decode[[]identity.Login](t, resp)
	if len(logins) != 2 {
		t.Fatalf("history rows: %d, want 2", len(logins))
	}
	var failed int
	for _, l := range logins {
		if l.Failed {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("failed rows: %d, want 1", failed)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	wantStatus(t, c.get("/auth/reset-password?email=alice%40example.com", nil), http.StatusOK)
	if len(c.mailer.sent) != 1 {
		t.Fatalf("mails sent: %d", len(c.mailer.sent))
	}
	body := c.mailer.sent[0].Text
	code := extractLine(t, body, "Request Code: ")

	wantStatus(t, c.post("/auth/reset-password", map[string]string{
		"authorization_code": code,
		"password":           "alice-pass",
		"new_password":       "brand-new-pass",
	}, nil), http.StatusOK)

	wantStatus(t, c.post("/auth/token", map[string]string{
		"username": "alice", "password": "alice-pass",
	}, nil), http.StatusUnauthorized)
	c.login("alice", "brand-new-pass")
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	wantStatus(t, c.get("/auth/reset-password?email=nobody%40example.com", nil), http.StatusNotFound)
	wantStatus(t, c.get("/auth/reset-password", nil), http.StatusBadRequest)
}

func TestRevokeAuthorization(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	wantStatus(t, c.get("/auth/reset-password?email=alice%40example.com", nil), http.StatusOK)
	body := c.mailer.sent[0].Text
	authCode := extractLine(t, body, "Request Code: ")
	revokeCode := extractLine(t, body, "Revoke Code: ")

	wantStatus(t, c.get("/auth/revoke-authorization?revoke_code="+revokeCode, nil), http.StatusOK)

	// A revoked code can no longer change the password.
	wantStatus(t, c.post("/auth/reset-password", map[string]string{
		"authorization_code": authCode,
		"password":           "alice-pass",
		"new_password":       "brand-new-pass",
	}, nil), http.StatusUnauthorized)

	wantStatus(t, c.get("/auth/revoke-authorization?revoke_code=unknown", nil), http.StatusNotFound)
}

func TestUnknownPath(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)

	// Unknown paths sit behind authentication like everything else.
	wantStatus(t, c.get("/nope", nil), http.StatusUnauthorized)

	pair := c.login("alice", "alice-pass")
	wantStatus(t, c.get("/nope", bearerHeader(pair.AccessToken)), http.StatusNotFound)
}

func extractLine(t *testing.T, body, label string) string {
	t.Helper()
	idx := strings.Index(body, label)
	if idx < 0 {
		t.Fatalf("label %q missing in %q", label, body)
	}
	rest := body[idx+len(label):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}
