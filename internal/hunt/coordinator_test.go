// internal/hunt/coordinator_test.go
package hunt

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestStartSamplesDistinctOrderedTargets(t *testing.T) {
	h := newHarness(t, StaticPools{"ten": namedPool(10)})
	sess := h.createSession(t, uuid.New(), 4, 3, "ten")
	h.join(t, sess, uuid.New())

	started, err := h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStarting, started.Status)
	require.NotNil(t, started.StartTimestamp)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), *started.StartTimestamp)

	targets, err := h.svc.ListTargets(h.ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, targets, 3)
	names := make(map[string]bool)
	for i, tg := range targets {
		assert.Equal(t, i+1, tg.OrderIndex)
		assert.Contains(t, namedPool(10), tg.Name)
		assert.False(t, names[tg.Name], "duplicate target %s", tg.Name)
		names[tg.Name] = true
	}

	ps, err := h.svc.ListParticipants(h.ctx, sess.ID)
	require.NoError(t, err)
	for _, p := range ps {
		assert.Equal(t, models.ParticipantReady, p.Status)
		assert.Nil(t, p.StartTime)
		require.Len(t, p.Targets, started.MaxObjects)
		for i, e := range p.Targets {
			assert.Equal(t, targets[i].OrderIndex, e.OrderIndex)
			assert.Equal(t, targets[i].Name, e.Name)
			assert.False(t, e.Found)
			assert.False(t, e.Skipped)
		}
	}
}

func TestStartWithSmallPoolLeavesSessionWaiting(t *testing.T) {
	h := newHarness(t, StaticPools{"tiny": {"cat", "dog", "cat", " "}})
	sess := h.createSession(t, uuid.New(), 4, 5, "tiny")

	_, err := h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.ErrorIs(t, err, apperr.ErrPoolExhausted)

	got, err := h.svc.GetSession(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionWaiting, got.Status)
	assert.Nil(t, got.StartTimestamp)

	targets, err := h.svc.ListTargets(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, targets)
	assert.Equal(t, 0, h.events.Count(EventSessionStarting))
}

func TestStartTreatsCaseVariantsAsOneObject(t *testing.T) {
	h := newHarness(t, StaticPools{"cats": {"Cat", "cat"}})
	sess := h.createSession(t, uuid.New(), 4, 2, "cats")

	_, err := h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.ErrorIs(t, err, apperr.ErrPoolExhausted)
}

func TestStartRejections(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.createSession(t, uuid.New(), 4, 3, "")

	_, err := h.svc.StartSession(h.ctx, sess.ID, uuid.New(), 0)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, -time.Second)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 2*time.Minute)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.StartSession(h.ctx, uuid.New(), sess.CreatorID, 0)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.NoError(t, err)
	_, err = h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCountdownFromSeconds(t *testing.T) {
	d, err := CountdownFromSeconds(0)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = CountdownFromSeconds(30)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	for _, secs := range []int64{-1, 36028797018963973, math.MaxInt64} {
		_, err = CountdownFromSeconds(secs)
		assert.ErrorIs(t, err, apperr.ErrValidation, "seconds=%d", secs)
	}
}

func TestStartUnknownObjectList(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.createSession(t, uuid.New(), 4, 3, "missing")

	_, err := h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCheckStartCountdown(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.createSession(t, uuid.New(), 4, 3, "")

	st, err := h.svc.CheckStart(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, st.Started)
	assert.Equal(t, models.SessionWaiting, st.Status)

	_, err = h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 10*time.Second)
	require.NoError(t, err)

	h.clock.Advance(2500 * time.Millisecond)
	st, err = h.svc.CheckStart(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, st.Started)
	assert.Equal(t, models.SessionStarting, st.Status)
	assert.Equal(t, 8, st.SecondsRemaining)

	h.clock.Advance(7500 * time.Millisecond)
	st, err = h.svc.CheckStart(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, st.Started)
	assert.Equal(t, models.SessionInProgress, st.Status)
	assert.Equal(t, 0, st.SecondsRemaining)
}

func TestConcurrentCheckStartTransitionsOnce(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.createSession(t, uuid.New(), 4, 3, "")
	users := []uuid.UUID{sess.CreatorID, uuid.New(), uuid.New()}
	h.join(t, sess, users[1])
	h.join(t, sess, users[2])

	started, err := h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.NoError(t, err)
	h.clock.Advance(5*time.Second + 300*time.Millisecond)

	var g errgroup.Group
	for range users {
		g.Go(func() error {
			st, err := h.svc.CheckStart(h.ctx, sess.ID)
			if err == nil && !st.Started {
				t.Errorf("poll after threshold reported not started")
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, h.events.Count(EventSessionInProgress))
	ps, err := h.svc.ListParticipants(h.ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, ps, 3)
	for _, p := range ps {
		assert.Equal(t, models.ParticipantInProgress, p.Status)
		require.NotNil(t, p.StartTime)
		assert.Equal(t, *started.StartTimestamp, *p.StartTime)
	}

	// Later polls only report.
	h.clock.Advance(time.Minute)
	st, err := h.svc.CheckStart(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, st.Started)
	assert.Equal(t, 1, h.events.Count(EventSessionInProgress))
}

func TestSweepStartsElapsedCountdowns(t *testing.T) {
	h := newHarness(t, nil)
	due := h.createSession(t, uuid.New(), 4, 3, "")
	later := h.createSession(t, uuid.New(), 4, 3, "")

	_, err := h.svc.StartSession(h.ctx, due.ID, due.CreatorID, 5*time.Second)
	require.NoError(t, err)
	_, err = h.svc.StartSession(h.ctx, later.ID, later.CreatorID, 30*time.Second)
	require.NoError(t, err)

	h.clock.Advance(6 * time.Second)
	n, err := h.svc.Starts.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.svc.GetSession(h.ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionInProgress, got.Status)
	got, err = h.svc.GetSession(h.ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStarting, got.Status)
}

func TestCreatorCanFinishSession(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.createSession(t, uuid.New(), 4, 3, "")
	h.join(t, sess, uuid.New())
	h.begin(t, sess)
	h.clock.Advance(time.Minute)

	finished := models.SessionFinished
	got, err := h.svc.UpdateSessionConfig(h.ctx, sess.ID, sess.CreatorID, SessionUpdate{Status: &finished})
	require.NoError(t, err)
	assert.Equal(t, models.SessionFinished, got.Status)
	require.NotNil(t, got.EndTimestamp)
	end := *got.EndTimestamp

	ps, err := h.svc.ListParticipants(h.ctx, sess.ID)
	require.NoError(t, err)
	for _, p := range ps {
		assert.Equal(t, models.ParticipantFinished, p.Status)
		require.NotNil(t, p.EndTime)
	}

	h.clock.Advance(time.Minute)
	_, err = h.svc.UpdateSessionConfig(h.ctx, sess.ID, sess.CreatorID, SessionUpdate{Status: &finished})
	require.ErrorIs(t, err, apperr.ErrConflict)
	got, err = h.svc.GetSession(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, end, *got.EndTimestamp)
}
