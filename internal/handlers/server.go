// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/accounts"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/middleware"
	"github.com/jason-s-yu/pikit/internal/quests"
	"github.com/jason-s-yu/pikit/internal/rewards"
	"github.com/sirupsen/logrus"
)

// maxUploadBytes bounds a multipart detection submission.
const maxUploadBytes = 10 << 20

// Server holds the services the HTTP routes delegate to.
type Server struct {
	Hunt     *hunt.Service
	Rewards  *rewards.Calculator
	Quests   *quests.Service
	Accounts *accounts.Service
	Logger   *logrus.Logger

	// SecureCookies marks the auth cookie Secure; on outside dev.
	SecureCookies bool
}

// Router builds the chi route tree. Only allowedOrigins may make CORS requests.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Authenticate(s.Accounts))

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.createUser)
		r.Post("/guest", s.createGuest)
		r.Post("/login", s.login)
		r.Post("/claim", s.claimGuest)
		r.Get("/me", s.me)
		r.Get("/me/totals", s.myTotals)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Post("/join", s.joinSession)
		r.Get("/code/{code}", s.getSessionByCode)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Put("/", s.updateSession)
			r.Put("/start", s.startSession)
			r.Get("/check-start", s.checkStart)
			r.Get("/participants", s.listParticipants)
			r.Get("/targets", s.listTargets)
		})
	})

	r.Get("/participants/{participantID}", s.getParticipant)
	r.Post("/detections", s.submitDetection)
	r.Post("/skips", s.skipTarget)

	r.Get("/quests/today", s.todayQuest)
	r.Post("/challenges/{challengeID}/complete", s.completeChallenge)
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.WithError(err).Warn("failed to write response")
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the core error taxonomy onto HTTP statuses. Unclassified errors are
// logged and reported as 500 without their detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		status = http.StatusNotFound
	case apperr.ErrUnauthorized:
		status = http.StatusForbidden
		if _, ok := middleware.UserID(r.Context()); !ok {
			status = http.StatusUnauthorized
		}
	case apperr.ErrConflict:
		status = http.StatusConflict
	case apperr.ErrValidation:
		status = http.StatusBadRequest
	case apperr.ErrPoolExhausted:
		status = http.StatusUnprocessableEntity
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.Logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
		msg = "internal error"
	}
	s.writeJSON(w, status, errorBody{Error: msg})
}

var errNoIdentity = errors.New("authentication required")

// requireUser returns the caller's id or writes 401.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: errNoIdentity.Error()})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request payload"})
		return false
	}
	return true
}

func (s *Server) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
