// internal/handlers/reward.go
package handlers

import "net/http"

func (s *Server) todayQuest(w http.ResponseWriter, r *http.Request) {
	q, err := s.Quests.Today(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

// completeChallenge pays out a quest at its own point value.
func (s *Server) completeChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	questID, ok := s.uuidParam(w, r, "challengeID")
	if !ok {
		return
	}
	rec, err := s.Quests.Complete(r.Context(), userID, questID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) myTotals(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	totals, err := s.Rewards.Totals(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, totals)
}
