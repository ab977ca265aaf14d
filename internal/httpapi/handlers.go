package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"starpass.org/api/spec"
	"starpass.org/internal/obs"
	"starpass.org/internal/passport"
)

// ReadyProbe checks the optional database dependency. A service running on
// the in-memory stores is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the HTTP layer.
type Config struct {
	Version      string
	ReadyProbe   ReadyProbe
	Codes        *passport.VerificationService
	Auth         *passport.AuthService
	Tokens       *passport.TokenService
	Admin        *passport.AdminService
	AdminAppID   string
	MetricsToken string
	Env          string
}

// API is the HTTP surface.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	codes  *passport.VerificationService
	auth   *passport.AuthService
	tokens *passport.TokenService
	admin  *passport.AdminService

	adminAppID   string
	metricsToken string
	env          string
}

func New(cfg Config) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   cfg.ReadyProbe,
		version:      cfg.Version,
		codes:        cfg.Codes,
		auth:         cfg.Auth,
		tokens:       cfg.Tokens,
		admin:        cfg.Admin,
		adminAppID:   cfg.AdminAppID,
		metricsToken: cfg.MetricsToken,
		env:          cfg.Env,
	}
	if a.adminAppID == "" {
		a.adminAppID = "admin"
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("GET /openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics, guarded outside development
	a.mux.Handle("GET /metrics", a.metricsGuard(obs.Handler()))

	// passport
	a.mux.HandleFunc("POST /passport/send-code", a.SendCode)
	a.mux.HandleFunc("POST /passport/login-by-phone", a.LoginByPhone)
	a.mux.HandleFunc("POST /passport/refresh-token", a.RefreshToken)
	a.mux.HandleFunc("POST /passport/{guid}/refresh-token", a.RefreshTokenByGUID)
	a.mux.HandleFunc("POST /passport/verify-token", a.VerifyToken)
	a.mux.HandleFunc("POST /passport/logout", a.Logout)

	// admin
	a.mux.HandleFunc("GET /admin/users", a.AdminListUsers)
	a.mux.HandleFunc("POST /admin/users/{guid}/ban", a.AdminBanUser)
	a.mux.HandleFunc("POST /admin/users/{guid}/unban", a.AdminUnbanUser)
	a.mux.HandleFunc("GET /admin/activity", a.AdminActivity)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 100, 50)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "starpass-api",
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

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "starpass-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "ERR_BAD_REQUEST",
			"message": "invalid json body",
		})
		return false
	}
	return true
}
