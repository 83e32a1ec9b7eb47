// internal/detector/client.go
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
)

// Config holds the recognition service endpoint and filtering options.
type Config struct {
	// URL of the service's detect endpoint, e.g. http://localhost:5000/detect.
	URL string

	// Timeout bounds one detect call (default: 30s).
	Timeout time.Duration

	// MinConfidence drops detections scored below it (0.0-1.0).
	MinConfidence float64
}

// Client calls an object-recognition service over HTTP. The service receives the image
// as a multipart "file" field and answers {"detections":[{"name","score","box"}]}.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type wireDetection struct {
	ClassID int       `json:"class_id"`
	Name    string    `json:"name"`
	Score   float64   `json:"score"`
	Box     []float64 `json:"box"`
}

type wireResponse struct {
	Detections []wireDetection `json:"detections"`
	Error      string          `json:"error"`
}

// Detect uploads image and returns the service's detections in its own ranking order.
func (c *Client) Detect(ctx context.Context, image []byte) ([]models.Detection, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "photo.jpg")
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call detector: %w", err)
	}
	defer resp.Body.Close()

	var wr wireResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decode detector response (status %d): %w", resp.StatusCode, err)
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("detector rejected image: %s: %w", wr.Error, apperr.ErrValidation)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, wr.Error)
	}

	out := make([]models.Detection, 0, len(wr.Detections))
	for _, d := range wr.Detections {
		det, err := toDetection(d)
		if err != nil {
			return nil, err
		}
		if det.Confidence < c.cfg.MinConfidence {
			continue
		}
		out = append(out, det)
	}
	return out, nil
}

func toDetection(d wireDetection) (models.Detection, error) {
	label := strings.TrimSpace(d.Name)
	if label == "" {
		return models.Detection{}, fmt.Errorf("detection without a label: %w", apperr.ErrValidation)
	}
	if len(d.Box) != 4 {
		return models.Detection{}, fmt.Errorf("detection %q has %d box coordinates: %w", label, len(d.Box), apperr.ErrValidation)
	}
	box := models.BBox{d.Box[0], d.Box[1], d.Box[2], d.Box[3]}
	if !box.Valid() {
		return models.Detection{}, fmt.Errorf("detection %q has malformed box %v: %w", label, d.Box, apperr.ErrValidation)
	}
	if d.Score < 0 || d.Score > 1 {
		return models.Detection{}, fmt.Errorf("detection %q has score %v outside [0,1]: %w", label, d.Score, apperr.ErrValidation)
	}
	return models.Detection{Label: label, Confidence: d.Score, BBox: box}, nil
}
