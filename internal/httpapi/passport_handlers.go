package httpapi

import (
	"net/http"
	"strings"

	"starpass.org/internal/obs"
)

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

func (a *API) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.codes.SendCode(r.Context(), req.Phone, clientIP(r)); err != nil {
		obs.IncSendCodeFailure()
		writePassportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

type loginRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	AppID string `json:"app_id"`
}

func (a *API) LoginByPhone(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AppID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "ERR_BAD_REQUEST",
			"message": "app_id is required",
		})
		return
	}
	res, err := a.auth.LoginByPhone(r.Context(), req.Phone, req.Code, req.AppID, clientIP(r))
	if err != nil {
		obs.IncLoginFailure()
		writePassportError(w, err)
		return
	}
	obs.IncLoginSuccess()
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	GUID         string `json:"guid"`
	RefreshToken string `json:"refresh_token"`
	AppID        string `json:"app_id"`
}

func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a.refresh(w, r, req)
}

// RefreshTokenByGUID is the path-parameter form of RefreshToken kept for
// clients that carry the guid in the URL.
func (a *API) RefreshTokenByGUID(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.GUID = r.PathValue("guid")
	a.refresh(w, r, req)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request, req refreshRequest) {
	if req.GUID == "" || req.RefreshToken == "" || req.AppID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "ERR_BAD_REQUEST",
			"message": "guid, refresh_token and app_id are required",
		})
		return
	}
	res, err := a.tokens.RefreshAccessToken(r.Context(), req.GUID, req.RefreshToken, req.AppID, clientIP(r))
	if err != nil {
		obs.IncRefreshFailure()
		writePassportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type verifyRequest struct {
	AccessToken string `json:"access_token"`
	AppID       string `json:"app_id"`
	WithClaims  bool   `json:"with_claims"`
}

func (a *API) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AccessToken == "" {
		req.AccessToken = bearerToken(r)
	}
	if req.AppID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "ERR_BAD_REQUEST",
			"message": "app_id is required",
		})
		return
	}

	if !req.WithClaims {
		check, err := a.tokens.VerifyAccessToken(r.Context(), req.AccessToken, req.AppID)
		if err != nil {
			writePassportError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, check)
		return
	}

	claims, assertion, err := a.tokens.VerifyAccessTokenWithClaims(r.Context(), req.AccessToken, req.AppID)
	if err != nil {
		writePassportError(w, err)
		return
	}
	body := map[string]any{"claims": claims}
	if assertion != "" {
		body["claims_token"] = assertion
	}
	writeJSON(w, http.StatusOK, body)
}

type logoutRequest struct {
	AccessToken string `json:"access_token"`
}

// Logout accepts the token either as a bearer header or in the body, and
// succeeds even when the token resolves to nothing.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.AccessToken == "" {
		req.AccessToken = bearerToken(r)
	}
	if err := a.tokens.LogoutByAccessToken(r.Context(), req.AccessToken); err != nil {
		writePassportError(w, err)
		return
	}
	obs.IncLogoutSuccess()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
