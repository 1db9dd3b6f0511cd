package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"squire.sh/internal/authz"
	"squire.sh/internal/obs"
	"squire.sh/internal/session"
	"squire.sh/internal/token"
)

// ReadyProbe — readiness check (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options collects the collaborators the HTTP layer needs.
type Options struct {
	Session    *session.Service
	Admin      *session.Admin
	Authorizer *authz.Engine
	Tokens     *token.Engine
	AuthMode   string
	Ready      ReadyProbe
	Version    string

	RateBurst     int
	RatePerSecond int
}

// API — HTTP layer.
type API struct {
	mux        *http.ServeMux
	session    *session.Service
	admin      *session.Admin
	authorizer *authz.Engine
	tokens     *token.Engine
	authMode   string
	readyProbe ReadyProbe
	version    string

	rateBurst     int
	ratePerSecond int
}

func New(opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		session:       opts.Session,
		admin:         opts.Admin,
		authorizer:    opts.Authorizer,
		tokens:        opts.Tokens,
		authMode:      opts.AuthMode,
		readyProbe:    opts.Ready,
		version:       opts.Version,
		rateBurst:     opts.RateBurst,
		ratePerSecond: opts.RatePerSecond,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 10
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session endpoints
	a.mux.HandleFunc("/auth/token", a.handleLogin)
	a.mux.HandleFunc("/auth/token/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/", a.handleCurrentUser)
	a.mux.HandleFunc("/auth/privileged", a.handlePrivileged)
	a.mux.HandleFunc("/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/auth/revoke-authorization", a.handleRevokeAuthorization)
	a.mux.HandleFunc("/auth/history", a.handleLoginHistory)

	// admin CRUD
	a.mux.HandleFunc("/admin/user", a.handleAdminUser)
	a.mux.HandleFunc("/admin/role", a.handleAdminRole)
	a.mux.HandleFunc("/admin/resource", a.handleAdminResource)
	a.mux.HandleFunc("/admin/permission", a.handleAdminPermission)
	a.mux.HandleFunc("/admin/policy", a.handleAdminPolicy)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "squire-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
