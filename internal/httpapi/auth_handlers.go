package httpapi

import (
	"net/http"
	"strings"

	"squire.sh/internal/audit"
	"squire.sh/internal/config"
	"squire.sh/internal/identity"
	"squire.sh/internal/obs"
	"squire.sh/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	AuthorizationCode string `json:"authorization_code"`
	Password          string `json:"password"`
	NewPassword       string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed form body")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	} else {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := a.session.Login(r.Context(), req.Username, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		obs.ObserveLogin("failure")
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"username": req.Username,
			"ip":       clientIP(r),
		})
		handleServiceError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"username": req.Username,
		"ip":       clientIP(r),
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	var (
		pair session.TokenPair
		err  error
	)
	if a.authMode == config.AuthModeGateway {
		// The gateway already vouched for the caller.
		var user *identity.User
		user, err = a.resolveCaller(r)
		if err == nil {
			pair, err = a.session.IssuePair(user)
		}
	} else {
		var raw string
		raw, err = extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		pair, err = a.session.Refresh(r.Context(), raw)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.refreshed", nil)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/auth/" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handlePrivileged(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user := a.requireAdmin(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "your role grants privileged access",
		"user":    user.Username,
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.requestPasswordReset(w, r)
	case http.MethodPost:
		a.confirmPasswordReset(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email query parameter is required")
		return
	}
	if err := a.session.RequestPasswordReset(r.Context(), email); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset.requested", map[string]any{
		"email": email,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "reset code sent to " + email,
	})
}

func (a *API) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.AuthorizationCode == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "authorization_code and new_password are required")
		return
	}
	if err := a.session.ResetPassword(r.Context(), req.AuthorizationCode, req.Password, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset.completed", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password updated",
	})
}

func (a *API) handleRevokeAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("revoke_code"))
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "revoke_code query parameter is required")
		return
	}
	if err := a.session.Revoke(r.Context(), code); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.authorization.revoked", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "authorization revoked",
	})
}

func (a *API) handleLoginHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	logins, err := a.session.LoginHistory(r.Context(), user)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logins)
}
