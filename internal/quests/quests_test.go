// internal/quests/quests_test.go
package quests

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/jason-s-yu/pikit/internal/rewards"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newService(t *testing.T, now *time.Time) (*Service, *MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := func() time.Time { return *now }
	store := NewMemoryStore()
	calc := rewards.NewCalculator(rewards.NewMemoryStore(), rewards.DefaultConfig(), logger, clock)
	svc := NewService(store, hunt.DefaultPools(), calc, Config{RewardPoints: 10}, logger, clock)
	return svc, store
}

func TestEnsureDailyIsIdempotentPerDate(t *testing.T) {
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newService(t, &now)
	ctx := context.Background()

	_, err := svc.Today(ctx)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	q, err := svc.EnsureDaily(ctx)
	require.NoError(t, err)
	assert.Contains(t, hunt.CocoObjects, q.ObjectToFind)
	assert.Contains(t, q.Description, q.ObjectToFind)
	assert.Equal(t, 10, q.RewardPoints)
	assert.Equal(t, models.Day(now), q.QuestDate)

	now = now.Add(10 * time.Hour)
	again, err := svc.EnsureDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, q.ID, again.ID)

	now = now.Add(12 * time.Hour)
	tomorrow, err := svc.EnsureDaily(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, q.ID, tomorrow.ID)
	assert.Equal(t, models.Day(now), tomorrow.QuestDate)
}

func TestEnsureDailyConcurrentCallersAgree(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 1, 0, time.UTC)
	svc, _ := newService(t, &now)

	var g errgroup.Group
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		g.Go(func() error {
			q, err := svc.EnsureDaily(context.Background())
			if err != nil {
				return err
			}
			ids[i] = q.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCompleteUsesQuestPoints(t *testing.T) {
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	svc, store := newService(t, &now)
	ctx := context.Background()

	q := &models.Quest{ID: uuid.New(), Name: "bonus", ObjectToFind: "cup", RewardPoints: 40, QuestDate: now.AddDate(0, 0, -3)}
	require.NoError(t, store.CreateQuest(ctx, q))

	user := uuid.New()
	rec, err := svc.Complete(ctx, user, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, rec.Points)

	_, err = svc.Complete(ctx, user, q.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Complete(ctx, user, uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSchedulerCreatesQuestAndSweeps(t *testing.T) {
	now := time.Now().UTC()
	svc, _ := newService(t, &now)
	sweeper := &countingSweeper{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sched, err := StartScheduler(context.Background(), svc, sweeper, 20*time.Millisecond, logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, sched.Shutdown()) }()

	_, err = svc.Today(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

// flakyScheduler fails every NewJob call after the first okJobs.
type flakyScheduler struct {
	gocron.Scheduler
	okJobs   int
	jobs     int
	shutdown atomic.Bool
}

func (f *flakyScheduler) NewJob(def gocron.JobDefinition, task gocron.Task, opts ...gocron.JobOption) (gocron.Job, error) {
	f.jobs++
	if f.jobs > f.okJobs {
		return nil, errors.New("job rejected")
	}
	return f.Scheduler.NewJob(def, task, opts...)
}

func (f *flakyScheduler) Shutdown() error {
	f.shutdown.Store(true)
	return f.Scheduler.Shutdown()
}

func TestSchedulerShutsDownWhenJobRegistrationFails(t *testing.T) {
	now := time.Now().UTC()
	svc, _ := newService(t, &now)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	orig := newScheduler
	t.Cleanup(func() { newScheduler = orig })

	for _, okJobs := range []int{0, 1} {
		inner, err := orig()
		require.NoError(t, err)
		flaky := &flakyScheduler{Scheduler: inner, okJobs: okJobs}
		newScheduler = func() (gocron.Scheduler, error) { return flaky, nil }

		_, err = StartScheduler(context.Background(), svc, &countingSweeper{}, time.Second, logger)
		require.Error(t, err)
		assert.True(t, flaky.shutdown.Load(), "okJobs=%d", okJobs)
	}
}
