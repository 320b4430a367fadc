package server

import (
	"net/http"

	"github.com/jrsteele09/carnotes-server/auth"
	"github.com/jrsteele09/carnotes-server/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User        users.Profile `json:"user"`
	AccessToken string        `json:"accessToken"`
}

type refreshResponse struct {
	User           users.Profile `json:"user"`
	NewAccessToken string        `json:"newAccessToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RegisterHandler creates an account. 204 on success, 400 with the first
// failed check otherwise.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in auth.RegisterInput
		if !decodeJSON(w, r, &in) {
			return
		}
		if err := s.sessions.Register(r.Context(), in); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// LoginHandler opens a session and sets the refresh cookie.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		session, err := s.sessions.Login(r.Context(), req.Email, req.Password, refreshCookie(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		s.SetRefreshCookie(w, session.RefreshToken)
		writeJSON(w, http.StatusOK, loginResponse{
			User:        session.User,
			AccessToken: session.AccessToken,
		})
	}
}

// RefreshHandler rotates the refresh cookie. A presented cookie is cleared
// on every outcome.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := refreshCookie(r)
		if presented != "" {
			s.ClearRefreshCookie(w)
		}

		session, err := s.sessions.Refresh(r.Context(), presented)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		s.SetRefreshCookie(w, session.RefreshToken)
		writeJSON(w, http.StatusOK, refreshResponse{
			User:           session.User,
			NewAccessToken: session.AccessToken,
		})
	}
}

// LogoutHandler always answers 204 unless the store itself failed.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := refreshCookie(r)
		if presented == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.ClearRefreshCookie(w)

		if err := s.sessions.Logout(r.Context(), presented); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
