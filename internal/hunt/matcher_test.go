// internal/hunt/matcher_test.go
package hunt

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSubmitMatchFinishesParticipantAndSession(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat"}})
	sess := h.createSession(t, uuid.New(), 2, 1, "pets")
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)

	h.clock.Advance(40 * time.Second)
	res, err := h.submit(p, "Cat")
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.True(t, res.LapTimeAdded)
	assert.True(t, res.ParticipantFinished)
	assert.True(t, res.SessionFinished)
	assert.True(t, res.AllResolved)
	assert.Nil(t, res.NextTarget)
	require.Len(t, res.Evidence, 1)
	assert.Equal(t, "Cat", res.Evidence[0].Label)
	assert.Equal(t, "cat", res.Evidence[0].TargetName)
	assert.True(t, res.Evidence[0].IsTargetMatch)

	got := res.Participant
	assert.Equal(t, models.ParticipantFinished, got.Status)
	assert.True(t, got.Targets[0].Found)
	require.Len(t, got.LapTimes, 1)
	lap := got.LapTimes[0]
	assert.Equal(t, 1, lap.OrderIndex)
	assert.Equal(t, h.clock.Now().Add(-30*time.Second), lap.StartTime)
	assert.Equal(t, h.clock.Now(), lap.EndTime)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, lap.EndTime, *got.EndTime)

	s, err := h.svc.GetSession(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFinished, s.Status)
	require.NotNil(t, s.EndTimestamp)
	assert.Equal(t, h.clock.Now(), *s.EndTimestamp)
	assert.Equal(t, 1, h.events.Count(EventSessionFinished))
}

func TestSessionFinishesOnlyWhenEveryoneFinishes(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat"}})
	sess := h.createSession(t, uuid.New(), 3, 1, "pets")
	other := uuid.New()
	h.join(t, sess, other)
	h.begin(t, sess)

	res, err := h.submit(h.participantFor(t, sess.ID, sess.CreatorID), "cat")
	require.NoError(t, err)
	assert.True(t, res.ParticipantFinished)
	assert.False(t, res.SessionFinished)

	s, err := h.svc.GetSession(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionInProgress, s.Status)
	assert.Nil(t, s.EndTimestamp)

	res, err = h.submit(h.participantFor(t, sess.ID, other), "CAT")
	require.NoError(t, err)
	assert.True(t, res.SessionFinished)

	s, err = h.svc.GetSession(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFinished, s.Status)
	assert.Equal(t, 1, h.events.Count(EventSessionFinished))
}

func TestSubmitWithoutMatchRecordsEvidenceOnly(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat", "dog"}})
	sess := h.createSession(t, uuid.New(), 2, 2, "pets")
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)
	active, _ := p.ActiveTarget()

	res, err := h.submit(p, "person", "bottle")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.False(t, res.LapTimeAdded)
	require.NotNil(t, res.Target)
	assert.Equal(t, active.Name, res.Target.Name)
	require.Len(t, res.Evidence, 2)
	for _, ev := range res.Evidence {
		assert.False(t, ev.IsTargetMatch)
		assert.Equal(t, active.Name, ev.TargetName)
		assert.Equal(t, p.ID, ev.ParticipantID)
		assert.True(t, strings.HasPrefix(ev.PhotoURL, "https://photos.test/evidence/"+p.ID.String()+"/"))
	}
	assert.Len(t, h.store.Evidence(p.ID), 2)

	got, err := h.svc.GetParticipant(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Targets, got.Targets)
	assert.Empty(t, got.LapTimes)
}

func TestSubmitServesTargetsInOrder(t *testing.T) {
	h := newHarness(t, StaticPools{"ten": namedPool(10)})
	sess := h.createSession(t, uuid.New(), 2, 3, "ten")
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)
	first, second, third := p.Targets[0].Name, p.Targets[1].Name, p.Targets[2].Name

	// A later target in the photo does not count while an earlier one is open.
	res, err := h.submit(p, second, third)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, 1, res.Target.OrderIndex)

	res, err = h.submit(p, first)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.NotNil(t, res.NextTarget)
	assert.Equal(t, 2, res.NextTarget.OrderIndex)

	res, err = h.submit(p, second)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, 3, res.NextTarget.OrderIndex)
	assert.False(t, res.ParticipantFinished)

	got, err := h.svc.GetParticipant(h.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.LapTimes, 2)
	assert.Equal(t, 1, got.LapTimes[0].OrderIndex)
	assert.Equal(t, 2, got.LapTimes[1].OrderIndex)
	assert.Equal(t, 2, got.FoundCount())
}

func TestSkippedTargetIsNeverActiveAgain(t *testing.T) {
	h := newHarness(t, StaticPools{"ten": namedPool(10)})
	sess := h.createSession(t, uuid.New(), 2, 3, "ten")
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)
	first, second, third := p.Targets[0].Name, p.Targets[1].Name, p.Targets[2].Name

	skipped, err := h.svc.SkipTarget(h.ctx, p.ID, p.UserID, 2)
	require.NoError(t, err)
	assert.True(t, skipped.Targets[1].Skipped)
	assert.False(t, skipped.Targets[1].Found)

	res, err := h.submit(p, first)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.NotNil(t, res.NextTarget)
	assert.Equal(t, 3, res.NextTarget.OrderIndex)

	res, err = h.submit(p, second)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, 3, res.Target.OrderIndex)

	res, err = h.submit(p, third)
	require.NoError(t, err)
	assert.True(t, res.ParticipantFinished)

	got, err := h.svc.GetParticipant(h.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Targets[1].Skipped)
	assert.False(t, got.Targets[1].Found)
	assert.Equal(t, 2, got.FoundCount())
	for _, lap := range got.LapTimes {
		assert.NotEqual(t, 2, lap.OrderIndex)
	}
}

func TestSkipRules(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat", "dog"}})
	sess := h.createSession(t, uuid.New(), 2, 2, "pets")
	waiting := h.participantFor(t, sess.ID, sess.CreatorID)
	_, err := h.svc.SkipTarget(h.ctx, waiting.ID, waiting.UserID, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)

	_, err = h.svc.SkipTarget(h.ctx, p.ID, uuid.New(), 1)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = h.svc.SkipTarget(h.ctx, p.ID, p.UserID, 7)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.SkipTarget(h.ctx, uuid.New(), p.UserID, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	res, err := h.submit(p, p.Targets[0].Name)
	require.NoError(t, err)
	require.True(t, res.Matched)
	_, err = h.svc.SkipTarget(h.ctx, p.ID, p.UserID, 1)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// Skipping the last open target finishes the participant and the session.
	h.clock.Advance(time.Minute)
	got, err := h.svc.SkipTarget(h.ctx, p.ID, p.UserID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantFinished, got.Status)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, h.clock.Now(), *got.EndTime)

	s, err := h.svc.GetSession(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFinished, s.Status)

	_, err = h.svc.SkipTarget(h.ctx, p.ID, p.UserID, 2)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 1, h.events.Count(EventTargetSkipped))
}

func TestRepeatSkipIsNoop(t *testing.T) {
	h := newHarness(t, StaticPools{"ten": namedPool(10)})
	sess := h.createSession(t, uuid.New(), 2, 3, "ten")
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)

	_, err := h.svc.SkipTarget(h.ctx, p.ID, p.UserID, 1)
	require.NoError(t, err)
	again, err := h.svc.SkipTarget(h.ctx, p.ID, p.UserID, 1)
	require.NoError(t, err)
	assert.True(t, again.Targets[0].Skipped)
	assert.Equal(t, 1, h.events.Count(EventTargetSkipped))
}

func TestSubmitWhenAllResolvedIsTerminal(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat"}})
	sess := h.createSession(t, uuid.New(), 2, 1, "pets")
	h.join(t, sess, uuid.New())
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)

	_, err := h.submit(p, "cat")
	require.NoError(t, err)
	calls := h.det.Calls()

	res, err := h.submit(p, "cat")
	require.NoError(t, err)
	assert.True(t, res.AllResolved)
	assert.False(t, res.Matched)
	assert.False(t, res.LapTimeAdded)
	assert.Empty(t, res.Evidence)
	assert.Equal(t, calls, h.det.Calls())
	assert.Len(t, res.Participant.LapTimes, 1)
}

func TestSubmitRejections(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat"}})
	sess := h.createSession(t, uuid.New(), 2, 1, "pets")
	p := h.participantFor(t, sess.ID, sess.CreatorID)
	now := h.clock.Now()

	_, err := h.svc.SubmitDetection(h.ctx, Submission{
		ParticipantID: p.ID, RequesterID: p.UserID,
		StartTime: now, EndTime: now.Add(-time.Second), Image: []byte("cat"),
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.SubmitDetection(h.ctx, Submission{
		ParticipantID: p.ID, RequesterID: p.UserID, EndTime: now, Image: []byte("cat"),
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.SubmitDetection(h.ctx, Submission{
		ParticipantID: p.ID, RequesterID: p.UserID, StartTime: now, EndTime: now,
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.SubmitDetection(h.ctx, Submission{
		ParticipantID: uuid.New(), RequesterID: p.UserID, StartTime: now, EndTime: now, Image: []byte("cat"),
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.StartSession(h.ctx, sess.ID, sess.CreatorID, 0)
	require.NoError(t, err)
	ready := h.participantFor(t, sess.ID, sess.CreatorID)

	_, err = h.submit(ready, "cat")
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.svc.SubmitDetection(h.ctx, Submission{
		ParticipantID: p.ID, RequesterID: uuid.New(), StartTime: now, EndTime: now, Image: []byte("cat"),
	})
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, 0, h.det.Calls())
}

func TestDetectorFailureLeavesProgressUntouched(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat"}})
	sess := h.createSession(t, uuid.New(), 2, 1, "pets")
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)

	h.det.err = errors.New("model not loaded")
	_, err := h.submit(p, "cat")
	require.Error(t, err)
	assert.Nil(t, apperr.Kind(err))

	h.det.err = nil
	h.det.bbox = models.BBox{50, 50, 10, 10}
	_, err = h.submit(p, "cat")
	require.ErrorIs(t, err, apperr.ErrValidation)

	got, err := h.svc.GetParticipant(h.ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Targets[0].Found)
	assert.Empty(t, got.LapTimes)
	assert.Empty(t, h.store.Evidence(p.ID))
	assert.Zero(t, h.photos.Stored(), "rejected submissions leave no photos behind")
}

func TestArchiveFailureDoesNotFailSubmission(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat"}})
	sess := h.createSession(t, uuid.New(), 2, 1, "pets")
	h.begin(t, sess)
	h.photos.fail = true

	res, err := h.submit(h.participantFor(t, sess.ID, sess.CreatorID), "cat")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Empty(t, res.Evidence[0].PhotoURL)
}

func TestConcurrentSubmissionsRecordOneLap(t *testing.T) {
	h := newHarness(t, StaticPools{"ten": namedPool(10)})
	sess := h.createSession(t, uuid.New(), 2, 2, "ten")
	h.begin(t, sess)
	p := h.participantFor(t, sess.ID, sess.CreatorID)
	first := p.Targets[0].Name

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := h.submit(p, first)
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := h.svc.GetParticipant(h.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.LapTimes, 1)
	assert.True(t, got.Targets[0].Found)
	assert.False(t, got.Targets[1].Found)
	assert.Equal(t, 1, h.events.Count(EventTargetFound))
}

func TestParallelPlayersCompleteSessionOnce(t *testing.T) {
	h := newHarness(t, StaticPools{"pets": {"cat"}})
	sess := h.createSession(t, uuid.New(), 8, 1, "pets")
	for i := 0; i < 7; i++ {
		h.join(t, sess, uuid.New())
	}
	h.begin(t, sess)
	ps, err := h.svc.ListParticipants(h.ctx, sess.ID)
	require.NoError(t, err)

	var g errgroup.Group
	for _, p := range ps {
		g.Go(func() error {
			_, err := h.submit(p, "cat")
			return err
		})
	}
	require.NoError(t, g.Wait())

	s, err := h.svc.GetSession(h.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFinished, s.Status)
	assert.Equal(t, 1, h.events.Count(EventSessionFinished))

	ps, err = h.svc.ListParticipants(h.ctx, sess.ID)
	require.NoError(t, err)
	for _, p := range ps {
		assert.Equal(t, models.ParticipantFinished, p.Status)
	}
}
