// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink persists a batch of match events atomically.
type Sink interface {
	InsertMatchEvents(ctx context.Context, events []hunt.Event) error
}

// Popper is the subset of the Redis client the historian reads with.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Config tunes batching.
type Config struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// PopTimeout bounds one BLPOP so cancellation is noticed (default 3s).
	PopTimeout time.Duration
}

// Service drains the match-event queue into the sink in batches. A batch is flushed
// when it reaches BatchSize or when FlushDelay elapses, whichever comes first.
type Service struct {
	rdb  Popper
	sink Sink
	cfg  Config
	log  *logrus.Logger

	batchMu sync.Mutex
	batch   []hunt.Event
}

func New(rdb Popper, sink Sink, cfg Config, logger *logrus.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{rdb: rdb, sink: sink, cfg: cfg, log: logger, batch: make([]hunt.Event, 0, cfg.BatchSize)}
}

// Run blocks until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	s.log.WithField("queue", s.cfg.Queue).Info("historian started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.FlushDelay)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Flush(ctx)
			}
		}
	}()

	s.readLoop(ctx)
	wg.Wait()

	// ctx is done; give the final flush its own deadline.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.log.Info("historian stopped")
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := s.rdb.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				s.log.WithError(err).Error("BLPop failed")
				time.Sleep(s.cfg.FlushDelay)
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		var ev hunt.Event
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			s.log.WithError(err).Warn("dropping undecodable match event")
			continue
		}
		s.add(ctx, ev)
	}
}

func (s *Service) add(ctx context.Context, ev hunt.Event) {
	s.batchMu.Lock()
	s.batch = append(s.batch, ev)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()
	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch. A failed batch is put back at the head of the queue
// so the next flush retries it.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]hunt.Event, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	if err := s.sink.InsertMatchEvents(ctx, pending); err != nil {
		s.log.WithError(err).WithField("events", len(pending)).Error("failed to flush match events")
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	s.log.WithField("events", len(pending)).Debug("flushed match events")
}
