package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/decred/slog"
)

type resultRequest struct {
	GameID       string `json:"gameId"`
	Player1Score int    `json:"player1Score"`
	Player2Score int    `json:"player2Score"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Results int    `json:"results"`
}

const maxRequestBody = 1 << 16 // 64 KB

// Chaos decides whether a request should fail on purpose.
type Chaos func() bool

// NewChaos fails a fraction rate of requests using roll.
func NewChaos(rate float64, roll func() float64) Chaos {
	return func() bool {
		return rate > 0 && roll() < rate
	}
}

func ListResults(l *Ledger, log slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		setHeaders(w)
		if err := json.NewEncoder(w).Encode(l.List()); err != nil {
			log.Warnf("List encode error: %v", err)
		}
	}
}

// PostResult records a result. The Idempotency-Key header defaults to the
// game ID; a key seen before is answered with 409.
func PostResult(l *Ledger, fail Chaos, log slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setHeaders(w)

		if fail != nil && fail() {
			log.Infof("Injected failure for %s", r.Header.Get("Idempotency-Key"))
			http.Error(w, `{"error":"temporarily unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req resultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.GameID) == "" {
			http.Error(w, `{"error":"gameId required"}`, http.StatusBadRequest)
			return
		}
		if req.Player1Score < 0 || req.Player2Score < 0 {
			http.Error(w, `{"error":"scores must not be negative"}`, http.StatusBadRequest)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			key = req.GameID
		}

		rec, created := l.Record(key, Result{
			GameID:       req.GameID,
			Player1Score: req.Player1Score,
			Player2Score: req.Player2Score,
		})
		if !created {
			log.Infof("Duplicate result for game %s (id=%s)", req.GameID, rec.ID)
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(rec)
			return
		}

		log.Infof("Recorded game %s: %d-%d (id=%s)", rec.GameID, rec.Player1Score, rec.Player2Score, rec.ID)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)
	}
}

func Health(l *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		setHeaders(w)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Results: l.Len()})
	}
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}
