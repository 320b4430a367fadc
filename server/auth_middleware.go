package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/carnotes-server/auth"
	"github.com/jrsteele09/carnotes-server/token"
)

const bearerPrefix = "Bearer "

// RequireAuth is the request gate for API routes. It verifies the Bearer
// access token cryptographically and puts the caller's identity on the request
// context; the credential store is never consulted. A missing or malformed
// header is 401, a token that fails verification is 403.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := authorizationHeader(r)
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			payload, err := s.codec.Verify(token.Access, strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				w.WriteHeader(http.StatusForbidden)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{
				UserID: payload.UserID,
				Roles:  payload.Roles,
			})
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok || !id.HasRole(role) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}

// authorizationHeader also looks at the raw lower-case key, which is how
// header maps built without canonicalisation store it.
func authorizationHeader(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		return v
	}
	if v := r.Header["authorization"]; len(v) > 0 {
		return v[0]
	}
	return ""
}
