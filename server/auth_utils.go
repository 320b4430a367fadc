package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/carnotes-server/auth"
	"github.com/jrsteele09/carnotes-server/token"
	"github.com/jrsteele09/carnotes-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// refreshCookieName is the cookie carrying the refresh token
const refreshCookieName = "refreshToken"

const contentTypeJSON = "application/json; charset=utf-8"

// Messages sent to the browser. The spelling matches what the frontend expects.
const (
	msgEmailExists    = "Email alredy exists!"
	msgNoAccount      = "Email does not exist!"
	msgBadCredentials = "Wrong passoword!"
	msgUserNotFound   = "User not found!"
	msgInvalidBody    = "Invalid request body!"
	msgInternalError  = "Internal server error"
)

const maxRequestBodySize = 1 << 20

func (s *Server) SetRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.codec.Expiry(token.Refresh).Seconds()),
	})
}

func (s *Server) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// refreshCookie returns the presented refresh token, or "" when there is none.
func refreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, msgInvalidBody, http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps session service errors onto status codes. Anything
// unexpected is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *auth.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSONError(w, validationErr.Reason, http.StatusBadRequest)
	case errors.Is(err, auth.ErrConflict):
		writeJSONError(w, msgEmailExists, http.StatusBadRequest)
	case errors.Is(err, auth.ErrNoAccount):
		writeJSONError(w, msgNoAccount, http.StatusUnauthorized)
	case errors.Is(err, auth.ErrBadCredentials):
		writeJSONError(w, msgBadCredentials, http.StatusUnauthorized)
	case errors.Is(err, auth.ErrUnauthorized):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, users.ErrNotFound):
		writeJSONError(w, msgUserNotFound, http.StatusNotFound)
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeJSONError(w, msgInternalError, http.StatusInternalServerError)
	}
}
