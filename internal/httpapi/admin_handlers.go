package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"starpass.org/internal/passport"
)

// requireAdmin authenticates the back-office caller: a bearer access token
// issued under the admin app, belonging to an admin-typed account.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (*passport.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"code":    string(passport.CodeAccessInvalid),
			"message": "missing bearer token",
		})
		return nil, false
	}
	claims, _, err := a.tokens.VerifyAccessTokenWithClaims(r.Context(), token, a.adminAppID)
	if err != nil {
		writePassportError(w, err)
		return nil, false
	}
	if claims.UserType != passport.LabelAdmin {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"code":    string(passport.CodeAppIDMismatch),
			"message": "admin access required",
		})
		return nil, false
	}
	return claims, true
}

func (a *API) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := a.admin.ListUsers(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		if errors.Is(err, passport.ErrBadStatusFilter) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code":    "ERR_BAD_REQUEST",
				"message": "unknown status filter",
			})
			return
		}
		writePassportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (a *API) AdminBanUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	var req banRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	err := a.admin.BanUser(r.Context(), r.PathValue("guid"), claims.GUID, req.Reason)
	if err != nil {
		if errors.Is(err, passport.ErrUnknownAccount) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"code":    "ERR_NOT_FOUND",
				"message": "unknown account",
			})
			return
		}
		writePassportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "banned"})
}

func (a *API) AdminUnbanUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	err := a.admin.UnbanUser(r.Context(), r.PathValue("guid"), claims.GUID)
	if err != nil {
		if errors.Is(err, passport.ErrUnknownAccount) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"code":    "ERR_NOT_FOUND",
				"message": "unknown account",
			})
			return
		}
		writePassportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "active"})
}

func (a *API) AdminActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	activity := a.admin.ListActivity(r.Context(), q.Get("guid"), limit)
	writeJSON(w, http.StatusOK, activity)
}
