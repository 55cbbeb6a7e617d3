// Package delivery reports finished match results to the ledger at least
// once, retrying with exponential backoff while the ledger is unavailable.
package delivery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/server/loop"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
)

// Sink records a result in the ledger. It may fail transiently.
type Sink interface {
	SubmitResult(ctx context.Context, gameID string, score1, score2 int) error
}

// Store persists pending results across restarts.
type Store interface {
	Load() ([]PendingResult, error)
	Save(pending []PendingResult) error
}

// PendingResult is a result whose delivery has failed at least once.
type PendingResult struct {
	GameID        string    `json:"gameId"`
	Score1        int       `json:"score1"`
	Score2        int       `json:"score2"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Status is a point-in-time view of the queue.
type Status struct {
	Pending   []PendingResult `json:"pending"`
	Delivered uint64          `json:"delivered"`
	Dropped   uint64          `json:"dropped"`
}

// Queue owns the pending results. It is safe for concurrent use.
type Queue struct {
	cfg   config.DeliveryConfig
	sink  Sink
	store Store
	clock clock.Clock
	log   slog.Logger

	mu        sync.Mutex
	pending   map[string]*PendingResult
	delivered uint64
	dropped   uint64

	inflight sync.WaitGroup
}

// NewQueue creates a queue. store may be nil to keep pending results in
// memory only.
func NewQueue(cfg config.DeliveryConfig, sink Sink, store Store, clk clock.Clock, log slog.Logger) *Queue {
	return &Queue{
		cfg:     cfg,
		sink:    sink,
		store:   store,
		clock:   clk,
		log:     log,
		pending: make(map[string]*PendingResult),
	}
}

// Submit tries to deliver a result now. On failure the result is queued,
// replacing the scores of any earlier entry for the same game.
func (q *Queue) Submit(ctx context.Context, gameID string, score1, score2 int) error {
	err := q.sink.SubmitResult(ctx, gameID, score1, score2)
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if err == nil {
		if _, ok := q.pending[gameID]; ok {
			delete(q.pending, gameID)
			q.persistLocked()
		}
		q.delivered++
		q.log.Infof("Delivered result for %s (%d-%d)", gameID, score1, score2)
		return nil
	}

	p, ok := q.pending[gameID]
	if !ok {
		p = &PendingResult{GameID: gameID, CreatedAt: now}
		q.pending[gameID] = p
	}
	p.Score1, p.Score2 = score1, score2
	p.Attempts++
	p.LastAttemptAt = now
	q.persistLocked()

	q.log.Warnf("Result for %s not delivered, queued (attempt %d): %v", gameID, p.Attempts, err)
	return fmt.Errorf("submit %s: %w", gameID, err)
}

// SubmitAsync runs Submit on its own goroutine with the configured timeout.
func (q *Queue) SubmitAsync(gameID string, score1, score2 int) {
	q.inflight.Add(1)
	go func() {
		defer q.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				q.log.Errorf("Result submission for %s panicked: %v", gameID, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.SubmitTimeout)
		defer cancel()
		_ = q.Submit(ctx, gameID, score1, score2)
	}()
}

// Wait blocks until every SubmitAsync call has finished.
func (q *Queue) Wait() {
	q.inflight.Wait()
}

// Backoff is the delay before retry number attempts+1.
func (q *Queue) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	d := q.cfg.BaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= q.cfg.MaxDelay {
			return q.cfg.MaxDelay
		}
	}
	return min(d, q.cfg.MaxDelay)
}

// Sweep drops expired entries and retries the ones whose backoff elapsed.
func (q *Queue) Sweep(ctx context.Context) {
	now := q.clock.Now()

	q.mu.Lock()
	var due []PendingResult
	changed := false
	for id, p := range q.pending {
		if p.Attempts >= q.cfg.MaxAttempts || now.Sub(p.CreatedAt) >= q.cfg.MaxAge {
			q.log.Errorf("Giving up on result for %s (%d-%d) after %d attempts, age %s",
				id, p.Score1, p.Score2, p.Attempts, now.Sub(p.CreatedAt).Round(time.Second))
			delete(q.pending, id)
			q.dropped++
			changed = true
			continue
		}
		if now.Sub(p.LastAttemptAt) >= q.Backoff(p.Attempts) {
			due = append(due, *p)
		}
	}
	if changed {
		q.persistLocked()
	}
	q.mu.Unlock()

	for _, p := range due {
		if ctx.Err() != nil {
			return
		}
		q.retry(ctx, p)
	}
}

func (q *Queue) retry(ctx context.Context, p PendingResult) {
	attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.SubmitTimeout)
	err := q.sink.SubmitResult(attemptCtx, p.GameID, p.Score1, p.Score2)
	cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.pending[p.GameID]
	if !ok {
		// Delivered by a fresh Submit while this retry was in flight.
		return
	}
	if err == nil {
		if cur.Score1 == p.Score1 && cur.Score2 == p.Score2 {
			delete(q.pending, p.GameID)
			q.delivered++
			q.log.Infof("Delivered result for %s on retry %d", p.GameID, p.Attempts)
		}
		q.persistLocked()
		return
	}
	cur.Attempts++
	cur.LastAttemptAt = q.clock.Now()
	q.persistLocked()
	q.log.Warnf("Retry %d for %s failed: %v", cur.Attempts, p.GameID, err)
}

// Start restores persisted entries and sweeps every SweepInterval until ctx
// is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.restore(); err != nil {
		return fmt.Errorf("restore pending results: %w", err)
	}

	l := loop.New("delivery", q.clock, q.cfg.SweepInterval, func() { q.Sweep(ctx) }, q.log).Start()
	<-ctx.Done()
	l.Stop()
	<-l.Done()
	q.Wait()
	return nil
}

func (q *Queue) restore() error {
	if q.store == nil {
		return nil
	}
	items, err := q.store.Load()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range items {
		p := items[i]
		if _, ok := q.pending[p.GameID]; !ok {
			q.pending[p.GameID] = &p
		}
	}
	if len(items) > 0 {
		q.log.Infof("Restored %d pending results", len(items))
	}
	return nil
}

func (q *Queue) persistLocked() {
	if q.store == nil {
		return
	}
	if err := q.store.Save(q.snapshotLocked()); err != nil {
		q.log.Warnf("Could not persist pending results: %v", err)
	}
}

func (q *Queue) snapshotLocked() []PendingResult {
	out := make([]PendingResult, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Status returns the pending entries, oldest first, and lifetime counters.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Pending:   q.snapshotLocked(),
		Delivered: q.delivered,
		Dropped:   q.dropped,
	}
}

// Len returns the number of pending results.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
