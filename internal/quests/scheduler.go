// internal/quests/scheduler.go
package quests

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Sweeper resolves elapsed countdowns; satisfied by *hunt.Coordinator.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler runs the background jobs: the daily quest at 00:00 UTC and, when a sweeper
// is given, the countdown sweep.
type Scheduler struct {
	sched gocron.Scheduler
	log   *logrus.Logger
}

// newScheduler is replaced in tests.
var newScheduler = func() (gocron.Scheduler, error) {
	return gocron.NewScheduler(gocron.WithLocation(time.UTC))
}

// StartScheduler creates today's quest immediately and registers the recurring jobs.
// A zero sweepEvery disables the countdown sweep.
func StartScheduler(ctx context.Context, svc *Service, sweeper Sweeper, sweepEvery time.Duration, logger *logrus.Logger) (*Scheduler, error) {
	sched, err := newScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, log: logger}
	abort := func(err error) (*Scheduler, error) {
		if serr := sched.Shutdown(); serr != nil {
			logger.WithError(serr).Warn("scheduler shutdown failed")
		}
		return nil, err
	}

	daily := func() {
		if _, err := svc.EnsureDaily(ctx); err != nil {
			logger.WithError(err).Error("daily quest job failed")
		}
	}
	if _, err := sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(daily),
		gocron.WithName("daily-quest"),
	); err != nil {
		return abort(fmt.Errorf("register daily quest job: %w", err))
	}

	if sweeper != nil && sweepEvery > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(sweepEvery),
			gocron.NewTask(func() {
				n, err := sweeper.Sweep(ctx)
				if err != nil {
					logger.WithError(err).Warn("countdown sweep failed")
					return
				}
				if n > 0 {
					logger.WithFields(logrus.Fields{"sessions": n}).Debug("countdown sweep started sessions")
				}
			}),
			gocron.WithName("countdown-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return abort(fmt.Errorf("register countdown sweep job: %w", err))
		}
	}

	daily()
	sched.Start()
	return s, nil
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
