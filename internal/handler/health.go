// Package handler holds the endpoints that sit outside the per-user API
// surface: health, readiness, and the development token issuer.
package handler

import (
	"net/http"
	"strings"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/auth"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/httputil"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/svc"
)

// HealthHandler reports liveness. It always answers 200 while the
// process can serve requests at all.
func HealthHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, map[string]string{"status": "ok"})
	}
}

// ReadyHandler reports readiness. Incomplete configuration (missing
// auth secret, missing provider) answers 503 with the reasons listed.
func ReadyHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reasons := svcCtx.ReadyErrors(); len(reasons) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "unavailable",
				"reasons": reasons,
			})
			return
		}
		httputil.OkJSON(w, map[string]string{"status": "ready"})
	}
}

// IssueTokenHandler mints an access token for the given identity. It is
// meant for local development and only mounted when auth.issuer_enabled
// is set; production deployments receive tokens from an external issuer
// sharing the same secret.
func IssueTokenHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
			Email  string `json:"email"`
			Name   string `json:"name"`
		}
		if err := httputil.Parse(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" {
			httputil.BadRequest(w, "user_id is required")
			return
		}

		token, err := auth.Issue(req.UserID, req.Email, req.Name, svcCtx.Config.Auth.AccessSecret, svcCtx.Config.AccessExpireDuration())
		if err != nil {
			if err == auth.ErrNoSecret {
				httputil.ErrorWithCode(w, http.StatusInternalServerError, "configuration_error", "auth secret not configured")
				return
			}
			httputil.InternalError(w, "could not issue token")
			return
		}

		httputil.OkJSON(w, map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int64(svcCtx.Config.AccessExpireDuration().Seconds()),
		})
	}
}
