// internal/historian/historian_test.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanQueue serves BLPOP from a channel.
type chanQueue struct {
	ch chan string
}

func (q *chanQueue) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx, "blpop")
	select {
	case v := <-q.ch:
		cmd.SetVal([]string{keys[0], v})
	case <-time.After(timeout):
		cmd.SetErr(redis.Nil)
	case <-ctx.Done():
		cmd.SetErr(ctx.Err())
	}
	return cmd
}

type memSink struct {
	mu      sync.Mutex
	batches [][]hunt.Event
	fail    int
}

func (s *memSink) InsertMatchEvents(_ context.Context, events []hunt.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]hunt.Event(nil), events...))
	return nil
}

func (s *memSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func push(t *testing.T, q *chanQueue, typ hunt.EventType) {
	t.Helper()
	raw, err := json.Marshal(hunt.Event{Type: typ, SessionID: uuid.New(), Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	q.ch <- string(raw)
}

func TestFlushesFullBatches(t *testing.T) {
	q := &chanQueue{ch: make(chan string, 16)}
	sink := &memSink{}
	svc := New(q, sink, Config{Queue: "events", BatchSize: 3, FlushDelay: time.Hour, PopTimeout: 10 * time.Millisecond}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { svc.Run(ctx); close(done) }()

	for range 3 {
		push(t, q, hunt.EventTargetFound)
	}
	assert.Eventually(t, func() bool { return sink.total() == 3 }, time.Second, 5*time.Millisecond)

	push(t, q, hunt.EventSessionFinished)
	assert.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 4, sink.total(), "remaining events are flushed on shutdown")
}

func TestFlushesOnTimer(t *testing.T) {
	q := &chanQueue{ch: make(chan string, 4)}
	sink := &memSink{}
	svc := New(q, sink, Config{Queue: "events", BatchSize: 100, FlushDelay: 20 * time.Millisecond, PopTimeout: 10 * time.Millisecond}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	push(t, q, hunt.EventSessionCreated)
	assert.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailedFlushIsRetried(t *testing.T) {
	sink := &memSink{fail: 1}
	svc := New(&chanQueue{}, sink, Config{BatchSize: 10}, quiet())
	ctx := context.Background()

	svc.add(ctx, hunt.Event{Type: hunt.EventTargetSkipped})
	svc.Flush(ctx)
	assert.Equal(t, 0, sink.total())

	svc.add(ctx, hunt.Event{Type: hunt.EventParticipantFinished})
	svc.Flush(ctx)
	require.Len(t, sink.batches, 1)
	assert.Equal(t, hunt.EventTargetSkipped, sink.batches[0][0].Type)
	assert.Equal(t, hunt.EventParticipantFinished, sink.batches[0][1].Type)
}

func TestUndecodableEventsAreDropped(t *testing.T) {
	q := &chanQueue{ch: make(chan string, 4)}
	sink := &memSink{}
	svc := New(q, sink, Config{BatchSize: 1, FlushDelay: time.Hour, PopTimeout: 10 * time.Millisecond}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	q.ch <- "{not json"
	push(t, q, hunt.EventSessionStarting)
	assert.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}
