// internal/handlers/detection.go
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/hunt"
)

// submitDetection takes a multipart form: participant_id, start_time and end_time
// (RFC 3339) and the image in "file".
func (s *Server) submitDetection(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form"})
		return
	}

	sub := hunt.Submission{RequesterID: userID}
	var err error
	if sub.ParticipantID, err = uuid.Parse(r.FormValue("participant_id")); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid participant_id"})
		return
	}
	if sub.StartTime, err = parseTime(r.FormValue("start_time")); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid start_time"})
		return
	}
	if sub.EndTime, err = parseTime(r.FormValue("end_time")); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid end_time"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "no file uploaded"})
		return
	}
	defer file.Close()
	if sub.Image, err = io.ReadAll(file); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read file"})
		return
	}
	sub.ContentType = header.Header.Get("Content-Type")
	if sub.ContentType == "" || sub.ContentType == "application/octet-stream" {
		sub.ContentType = http.DetectContentType(sub.Image)
	}

	res, err := s.Hunt.SubmitDetection(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// parseTime leaves an absent value as the zero time; the core rejects it.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

type skipRequest struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	OrderIndex    int       `json:"order_index"`
}

func (s *Server) skipTarget(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req skipRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.Hunt.SkipTarget(r.Context(), req.ParticipantID, userID, req.OrderIndex)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}
