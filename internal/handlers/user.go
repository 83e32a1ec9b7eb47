// internal/handlers/user.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/pikit/internal/accounts"
	"github.com/jason-s-yu/pikit/internal/middleware"
	"github.com/jason-s-yu/pikit/internal/models"
)

type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// setAuthCookie mirrors the token into the auth_token cookie for browser clients.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req accounts.Credentials
	if !s.decode(w, r, &req) {
		return
	}
	u, token, err := s.Accounts.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, token)
	s.writeJSON(w, http.StatusCreated, authResponse{User: u, Token: token})
}

// createGuest gives a visitor without credentials an ephemeral account.
func (s *Server) createGuest(w http.ResponseWriter, r *http.Request) {
	u, token, err := s.Accounts.CreateGuest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, token)
	s.writeJSON(w, http.StatusCreated, authResponse{User: u, Token: token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, token, err := s.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, token)
	s.writeJSON(w, http.StatusOK, authResponse{User: u, Token: token})
}

func (s *Server) claimGuest(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req accounts.Credentials
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.Accounts.Claim(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	u, err := s.Accounts.Get(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}
