package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"starpass.org/internal/audit"
	"starpass.org/internal/kv"
	"starpass.org/internal/loginlog"
	"starpass.org/internal/passport"
	"starpass.org/internal/users"
)

type testEnv struct {
	api   *API
	users *users.MemoryStore
	now   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	store := kv.NewMemoryStore(kv.WithClock(clock))
	env.users = users.NewMemoryStore(users.WithClock(clock))
	sessions := passport.NewSessionStore(store)
	codes := passport.NewVerificationService(store, passport.ConsoleGateway{},
		passport.WithVerificationClock(clock),
		passport.WithCodeFunc(func() string { return "123456" }),
	)
	governor := passport.NewRateGovernor(store)
	logins := loginlog.NewRecorder(loginlog.WithClock(clock))
	auditLog := audit.NewLog(audit.WithClock(clock))
	roles := passport.NewRoleMapping("9", "9=OPERATOR")

	auth := passport.NewAuthService(env.users, sessions, codes, governor, logins, auditLog, roles,
		passport.WithAuthClock(clock))
	tokens := passport.NewTokenService(sessions, governor, logins, auditLog, roles,
		passport.WithTokenClock(clock))
	admin := passport.NewAdminService(env.users, sessions, logins, auditLog, roles)

	env.api = New(Config{
		Version:    "test",
		Codes:      codes,
		Auth:       auth,
		Tokens:     tokens,
		Admin:      admin,
		AdminAppID: "admin",
	})
	return env
}

func (env *testEnv) post(t *testing.T, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.api.mux.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) get(t *testing.T, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.api.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// login walks the whole send-code/login flow and returns the session fields.
func (env *testEnv) login(t *testing.T, phone, appID string) map[string]any {
	t.Helper()
	rec := env.post(t, "/passport/send-code", map[string]string{"phone": phone}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("send-code status %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.post(t, "/passport/login-by-phone", map[string]string{
		"phone": phone, "code": "123456", "app_id": appID,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	env.now = env.now.Add(61 * time.Second)
	var res map[string]any
	decodeBody(t, rec, &res)
	return res
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "13800138000", "app-a")

	for _, field := range []string{"guid", "access_token", "refresh_token", "roles", "expires_in"} {
		if _, ok := res[field]; !ok {
			t.Fatalf("login response missing %q: %v", field, res)
		}
	}
	if res["user_type"] != "user" {
		t.Fatalf("user_type = %v", res["user_type"])
	}
}

func TestLoginWrongCode(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "/passport/send-code", map[string]string{"phone": "13800138000"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("send-code status %d", rec.Code)
	}
	rec = env.post(t, "/passport/login-by-phone", map[string]string{
		"phone": "13800138000", "code": "000000", "app_id": "app-a",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["code"] != "ERR_CODE_INVALID" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestSendCodeCooldownStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "/passport/send-code", map[string]string{"phone": "13800138000"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first send status %d", rec.Code)
	}
	rec = env.post(t, "/passport/send-code", map[string]string{"phone": "13800138000"}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second send status %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["code"] != "ERR_CODE_TOO_FREQUENT" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestRefreshBothForms(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "13800138000", "app-a")
	guid := res["guid"].(string)
	refresh := res["refresh_token"].(string)

	rec := env.post(t, "/passport/refresh-token", map[string]string{
		"guid": guid, "refresh_token": refresh, "app_id": "app-a",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("body form status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.post(t, fmt.Sprintf("/passport/%s/refresh-token", guid), map[string]string{
		"refresh_token": refresh, "app_id": "app-b",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("path form status %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["refresh_token"] != refresh {
		t.Fatal("refresh token must not rotate")
	}
}

func TestRefreshUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "/passport/refresh-token", map[string]string{
		"guid": "20991231019999999999", "refresh_token": "R.deadbeef", "app_id": "app-a",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["code"] != "ERR_SESSION_NOT_FOUND" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestVerifyToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "13800138000", "app-a")
	access := res["access_token"].(string)

	rec := env.post(t, "/passport/verify-token", map[string]any{
		"access_token": access, "app_id": "app-a",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var check map[string]any
	decodeBody(t, rec, &check)
	if check["guid"] != res["guid"] || check["app_id"] != "app-a" {
		t.Fatalf("unexpected check: %v", check)
	}

	rec = env.post(t, "/passport/verify-token", map[string]any{
		"access_token": access, "app_id": "app-b",
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("mismatch status = %d", rec.Code)
	}

	rec = env.post(t, "/passport/verify-token", map[string]any{
		"access_token": "garbage", "app_id": "app-a",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage status = %d", rec.Code)
	}

	// app_id is not optional; an unpinned verify would skip the app check.
	rec = env.post(t, "/passport/verify-token", map[string]any{
		"access_token": access,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing app_id status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["code"] != "ERR_BAD_REQUEST" {
		t.Fatalf("missing app_id code = %v", body["code"])
	}
}

func TestVerifyTokenWithClaims(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "13800138000", "app-a")

	rec := env.post(t, "/passport/verify-token", map[string]any{
		"access_token": res["access_token"], "app_id": "app-a", "with_claims": true,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	claims, ok := body["claims"].(map[string]any)
	if !ok || claims["guid"] != res["guid"] {
		t.Fatalf("unexpected claims: %v", body)
	}
}

func TestLogoutIdempotentOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "13800138000", "app-a")
	header := map[string]string{"Authorization": "Bearer " + res["access_token"].(string)}

	rec := env.post(t, "/passport/logout", nil, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("first logout status %d", rec.Code)
	}
	rec = env.post(t, "/passport/logout", nil, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("second logout status %d", rec.Code)
	}

	// The session is gone for real.
	rec = env.post(t, "/passport/verify-token", map[string]any{
		"access_token": res["access_token"], "app_id": "app-a",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("verify after logout status %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rec := env.get(t, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status %d", path, rec.Code)
		}
	}
	rec := env.get(t, "/openapi.yaml", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("openapi status %d, len %d", rec.Code, rec.Body.Len())
	}
}
