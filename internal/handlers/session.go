// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/models"
)

type createSessionResponse struct {
	Session     *models.GameSession `json:"session"`
	Participant *models.Participant `json:"participant"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req hunt.CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.CreatorID = userID

	sess, p, err := s.Hunt.CreateSession(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createSessionResponse{Session: sess, Participant: p})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	sess, err := s.Hunt.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getSessionByCode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Hunt.GetSessionByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	var upd hunt.SessionUpdate
	if !s.decode(w, r, &upd) {
		return
	}
	sess, err := s.Hunt.UpdateSessionConfig(r.Context(), id, userID, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type joinRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.Hunt.JoinSession(r.Context(), req.Code, userID, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

type startRequest struct {
	CountdownSeconds int64 `json:"countdown_seconds"`
}

// startSession accepts an empty body, which uses the default countdown.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	var req startRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<10))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request payload"})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request payload"})
			return
		}
	}

	countdown, err := hunt.CountdownFromSeconds(req.CountdownSeconds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.Hunt.StartSession(r.Context(), id, userID, countdown)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) checkStart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	state, err := s.Hunt.CheckStart(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	ps, err := s.Hunt.ListParticipants(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ps == nil {
		ps = []*models.Participant{}
	}
	s.writeJSON(w, http.StatusOK, ps)
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	ts, err := s.Hunt.ListTargets(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ts == nil {
		ts = []models.ObjectTarget{}
	}
	s.writeJSON(w, http.StatusOK, ts)
}

func (s *Server) getParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "participantID")
	if !ok {
		return
	}
	p, err := s.Hunt.GetParticipant(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}
