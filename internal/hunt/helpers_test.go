// internal/hunt/helpers_test.go
package hunt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by every component under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeDetector reads the image as a comma-separated list of labels and reports each one.
type fakeDetector struct {
	mu    sync.Mutex
	calls int
	err   error
	bbox  models.BBox
}

func (d *fakeDetector) Detect(_ context.Context, image []byte) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	var out []models.Detection
	for _, label := range strings.Split(string(image), ",") {
		if label = strings.TrimSpace(label); label == "" {
			continue
		}
		out = append(out, models.Detection{Label: label, Confidence: 0.9, BBox: d.bbox})
	}
	return out, nil
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (a *fakeArchive) PutPhoto(_ context.Context, key string, _ []byte, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return "", errors.New("bucket unavailable")
	}
	a.keys = append(a.keys, key)
	return "https://photos.test/" + key, nil
}

func (a *fakeArchive) Stored() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

type harness struct {
	svc    *Service
	store  *MemoryStore
	clock  *fakeClock
	det    *fakeDetector
	events *recordingPublisher
	photos *fakeArchive
	ctx    context.Context
}

// newHarness builds a Service over in-memory collaborators. Extra pools are added on top
// of the built-in coco list.
func newHarness(t *testing.T, extra StaticPools) *harness {
	t.Helper()
	pools := DefaultPools()
	for name, objs := range extra {
		pools[name] = objs
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		store:  NewMemoryStore(),
		clock:  &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		det:    &fakeDetector{bbox: models.BBox{10, 20, 110, 220}},
		events: &recordingPublisher{},
		photos: &fakeArchive{},
		ctx:    context.Background(),
	}
	h.svc = NewService(Deps{
		Store:    h.store,
		Pools:    pools,
		Detector: h.det,
		Events:   h.events,
		Photos:   h.photos,
		Logger:   logger,
		Now:      h.clock.Now,
	}, DefaultConfig())
	return h
}

// createSession makes a public session owned by host.
func (h *harness) createSession(t *testing.T, host uuid.UUID, maxPlayers, maxObjects int, list string) *models.GameSession {
	t.Helper()
	sess, _, err := h.svc.CreateSession(h.ctx, CreateSessionRequest{
		CreatorID:  host,
		MaxPlayers: maxPlayers,
		MaxObjects: maxObjects,
		ObjectList: list,
		IsPublic:   true,
	})
	require.NoError(t, err)
	return sess
}

func (h *harness) join(t *testing.T, sess *models.GameSession, user uuid.UUID) *models.Participant {
	t.Helper()
	p, err := h.svc.JoinSession(h.ctx, sess.Code, user, "")
	require.NoError(t, err)
	return p
}

// begin starts the session and polls once the countdown has elapsed.
func (h *harness) begin(t *testing.T, sess *models.GameSession) {
	t.Helper()
	_, err := h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.NoError(t, err)
	h.clock.Advance(DefaultConfig().DefaultCountdown)
	st, err := h.svc.CheckStart(h.ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, st.Started)
}

func (h *harness) participantFor(t *testing.T, sessionID, user uuid.UUID) *models.Participant {
	t.Helper()
	ps, err := h.svc.ListParticipants(h.ctx, sessionID)
	require.NoError(t, err)
	for _, p := range ps {
		if p.UserID == user {
			return p
		}
	}
	t.Fatalf("user %s not in session %s", user, sessionID)
	return nil
}

// submit sends a photo whose detections are exactly labels.
func (h *harness) submit(p *models.Participant, labels ...string) (*SubmitResult, error) {
	start := h.clock.Now()
	return h.svc.SubmitDetection(h.ctx, Submission{
		ParticipantID: p.ID,
		RequesterID:   p.UserID,
		StartTime:     start.Add(-30 * time.Second),
		EndTime:       start,
		Image:         []byte(strings.Join(labels, ",")),
		ContentType:   "image/jpeg",
	})
}

func namedPool(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("object-%02d", i+1)
	}
	return out
}
