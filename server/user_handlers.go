package server

import (
	"net/http"

	"github.com/jrsteele09/carnotes-server/auth"
)

// identity is set by RequireAuth; handlers behind it can rely on it.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := s.sessions.Profile(r.Context(), identity(r).UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// ChangePasswordHandler signs the user out everywhere, this browser included.
func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		err := s.sessions.ChangePassword(r.Context(), identity(r).UserID, req.CurrentPassword, req.Password, req.ConfirmPassword)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		s.ClearRefreshCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) DeleteMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.DeleteAccount(r.Context(), identity(r).UserID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		s.ClearRefreshCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) DeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
