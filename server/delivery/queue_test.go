package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/automoto/airhockey-mp/config"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	gameID         string
	score1, score2 int
}

type fakeSink struct {
	mu    sync.Mutex
	fail  bool
	calls []call
}

func (s *fakeSink) SubmitResult(_ context.Context, gameID string, score1, score2 int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{gameID, score1, score2})
	if s.fail {
		return errors.New("ledger unavailable")
	}
	return nil
}

func (s *fakeSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type memStore struct {
	mu    sync.Mutex
	items []PendingResult
	saves int
}

func (m *memStore) Load() ([]PendingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PendingResult(nil), m.items...), nil
}

func (m *memStore) Save(items []PendingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]PendingResult(nil), items...)
	m.saves++
	return nil
}

func testDeliveryConfig() config.DeliveryConfig {
	return config.Default().Delivery
}

func newTestQueue(sink Sink, store Store) (*Queue, *clock.Mock) {
	mock := clock.NewMock()
	return NewQueue(testDeliveryConfig(), sink, store, mock, slog.Disabled), mock
}

func TestSubmitDeliversImmediately(t *testing.T) {
	sink := &fakeSink{}
	q, _ := newTestQueue(sink, nil)

	require.NoError(t, q.Submit(context.Background(), "g1", 7, 3))
	assert.Equal(t, []call{{"g1", 7, 3}}, sink.calls)
	assert.Zero(t, q.Len())
	assert.Equal(t, uint64(1), q.Status().Delivered)
}

func TestSubmitFailureQueuesLatestScores(t *testing.T) {
	sink := &fakeSink{fail: true}
	q, mock := newTestQueue(sink, nil)
	created := mock.Now()

	assert.Error(t, q.Submit(context.Background(), "g1", 1, 0))
	mock.Add(time.Second)
	assert.Error(t, q.Submit(context.Background(), "g1", 2, 0))

	st := q.Status()
	require.Len(t, st.Pending, 1)
	p := st.Pending[0]
	assert.Equal(t, 2, p.Score1)
	assert.Equal(t, 2, p.Attempts)
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, mock.Now(), p.LastAttemptAt)
}

func TestBackoff(t *testing.T) {
	q, _ := newTestQueue(&fakeSink{}, nil)
	base := q.cfg.BaseDelay

	assert.Equal(t, base, q.Backoff(1))
	assert.Equal(t, 2*base, q.Backoff(2))
	assert.Equal(t, 4*base, q.Backoff(3))
	assert.Equal(t, q.cfg.MaxDelay, q.Backoff(9))
	assert.Equal(t, q.cfg.MaxDelay, q.Backoff(500))
}

func TestSweepHonoursBackoff(t *testing.T) {
	sink := &fakeSink{fail: true}
	q, mock := newTestQueue(sink, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = q.Submit(ctx, "g1", 7, 5)
	}
	require.Equal(t, 3, q.Status().Pending[0].Attempts)
	calls := sink.count()

	mock.Add(4*q.cfg.BaseDelay - time.Millisecond)
	q.Sweep(ctx)
	assert.Equal(t, calls, sink.count(), "retried before backoff elapsed")

	mock.Add(time.Millisecond)
	q.Sweep(ctx)
	assert.Equal(t, calls+1, sink.count())
	assert.Equal(t, 4, q.Status().Pending[0].Attempts)
}

func TestSweepRetrySuccessRemovesEntry(t *testing.T) {
	sink := &fakeSink{fail: true}
	q, mock := newTestQueue(sink, nil)
	ctx := context.Background()
	_ = q.Submit(ctx, "g1", 7, 5)

	sink.setFail(false)
	mock.Add(q.cfg.BaseDelay)
	q.Sweep(ctx)

	assert.Zero(t, q.Len())
	assert.Equal(t, call{"g1", 7, 5}, sink.calls[len(sink.calls)-1])
}

func TestSweepDropsAtMaxAttempts(t *testing.T) {
	sink := &fakeSink{fail: true}
	q, _ := newTestQueue(sink, nil)
	ctx := context.Background()
	for i := 0; i < q.cfg.MaxAttempts; i++ {
		_ = q.Submit(ctx, "g1", 1, 7)
	}
	calls := sink.count()

	q.Sweep(ctx)

	assert.Zero(t, q.Len())
	assert.Equal(t, calls, sink.count())
	assert.Equal(t, uint64(1), q.Status().Dropped)
}

func TestSweepDropsAtMaxAge(t *testing.T) {
	sink := &fakeSink{fail: true}
	q, mock := newTestQueue(sink, nil)
	ctx := context.Background()
	_ = q.Submit(ctx, "g1", 1, 7)

	mock.Add(q.cfg.MaxAge)
	q.Sweep(ctx)

	assert.Zero(t, q.Len())
	assert.Equal(t, 1, sink.count())
}

func TestFreshSubmitClearsQueuedEntry(t *testing.T) {
	sink := &fakeSink{fail: true}
	q, _ := newTestQueue(sink, nil)
	ctx := context.Background()
	_ = q.Submit(ctx, "g1", 1, 0)

	sink.setFail(false)
	require.NoError(t, q.Submit(ctx, "g1", 2, 0))
	assert.Zero(t, q.Len())
}

func TestPendingResultsArePersistedAndRestored(t *testing.T) {
	store := &memStore{}
	sink := &fakeSink{fail: true}
	q, _ := newTestQueue(sink, store)
	_ = q.Submit(context.Background(), "g1", 3, 7)
	require.Len(t, store.items, 1)

	restored, _ := newTestQueue(&fakeSink{}, store)
	require.NoError(t, restored.restore())
	require.Equal(t, 1, restored.Len())
	assert.Equal(t, "g1", restored.Status().Pending[0].GameID)
}

func TestSubmitAsyncCallsSinkOnce(t *testing.T) {
	sink := &fakeSink{}
	q, _ := newTestQueue(sink, nil)

	q.SubmitAsync("g1", 7, 2)
	q.Wait()

	assert.Equal(t, 1, sink.count())
}

func TestStartSweepsUntilCancelled(t *testing.T) {
	sink := &fakeSink{fail: true}
	q, mock := newTestQueue(sink, nil)
	_ = q.Submit(context.Background(), "g1", 7, 0)
	sink.setFail(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Start(ctx) }()

	require.Eventually(t, func() bool {
		mock.Add(q.cfg.SweepInterval)
		return q.Len() == 0
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
