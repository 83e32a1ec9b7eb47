// internal/models/detection.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// BBox is a bounding box in pixel coordinates: [x1, y1, x2, y2].
type BBox [4]float64

// Valid reports whether the box has non-negative, ordered corners.
func (b BBox) Valid() bool {
	return b[0] >= 0 && b[1] >= 0 && b[2] >= b[0] && b[3] >= b[1]
}

// Detection is one labeled region returned by the object-recognition service.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Evidence is a persisted detection, tagged with the target that was active when the
// image was submitted.
type Evidence struct {
	ID            uuid.UUID `json:"id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	BBox          BBox      `json:"bbox"`
	TargetName    string    `json:"target_name"`
	IsTargetMatch bool      `json:"is_target_match"`
	PhotoURL      string    `json:"photo_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
