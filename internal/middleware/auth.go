package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/civicpoints/internal/auth"
	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/store"
)

// CodeUnauthorized is the error code for missing or expired sessions.
const CodeUnauthorized = "unauthorized"

// RequireAuth validates the bearer session token and populates AuthContext.
func RequireAuth(sessionStore *store.SessionStore, memberStore *store.MemberStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token", CodeUnauthorized)
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "failed to load session", points.CodeBackendUnavailable)
				return
			}
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired session", CodeUnauthorized)
				return
			}

			member, err := memberStore.GetByID(r.Context(), sess.MemberID)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "failed to load member", points.CodeBackendUnavailable)
				return
			}
			if member == nil {
				writeError(w, http.StatusUnauthorized, "member no longer exists", CodeUnauthorized)
				return
			}

			ac := auth.AuthContext{
				MemberID:  member.ID,
				Role:      member.Role,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated member has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin role required", points.CodeNotAdmin)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
