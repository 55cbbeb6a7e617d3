package main

import (
	"sort"
	"sync"
	"time"

	"github.com/automoto/airhockey-mp/server/loop"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
	"github.com/google/uuid"
)

// Result is one recorded match outcome.
type Result struct {
	ID             string    `json:"id"`
	GameID         string    `json:"gameId"`
	Player1Score   int       `json:"player1Score"`
	Player2Score   int       `json:"player2Score"`
	IdempotencyKey string    `json:"idempotencyKey"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// Ledger is an in-memory record of match results keyed by idempotency key.
// Records expire after the TTL.
type Ledger struct {
	mu      sync.RWMutex
	results map[string]*Result
	ttl     time.Duration
	clock   clock.Clock
	log     slog.Logger
	cleanup *loop.GameLoop
}

func NewLedger(ttl time.Duration, clk clock.Clock, log slog.Logger) *Ledger {
	l := &Ledger{
		results: make(map[string]*Result),
		ttl:     ttl,
		clock:   clk,
		log:     log,
	}
	l.cleanup = loop.New("ledger cleanup", clk, cleanupInterval(ttl), func() { l.Expire() }, log).Start()
	return l
}

func cleanupInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/4, time.Second), 30*time.Second)
}

func (l *Ledger) Stop() {
	l.cleanup.Stop()
}

// Record stores r under key. It reports false, and returns the existing
// record, when key was already recorded.
func (l *Ledger) Record(key string, r Result) (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.results[key]; ok {
		return *existing, false
	}
	r.ID = uuid.NewString()
	r.IdempotencyKey = key
	r.RecordedAt = l.clock.Now()
	l.results[key] = &r
	return r, true
}

// List returns every record, oldest first.
func (l *Ledger) List() []Result {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Result, 0, len(l.results))
	for _, r := range l.results {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.results)
}

// Expire drops records older than the TTL and returns how many went.
func (l *Ledger) Expire() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	n := 0
	for key, r := range l.results {
		if age := now.Sub(r.RecordedAt); age >= l.ttl {
			l.log.Debugf("Expired result %s for game %s (recorded %s ago)", r.ID, r.GameID, age.Round(time.Second))
			delete(l.results, key)
			n++
		}
	}
	return n
}
