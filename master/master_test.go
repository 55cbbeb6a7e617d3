package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/automoto/airhockey-mp/server/delivery"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	l := NewLedger(time.Hour, clk, slog.Disabled)
	t.Cleanup(l.Stop)
	return l, clk
}

func post(t *testing.T, mux http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/results", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestPostResultIsIdempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	mux := newMux(l, nil, slog.Disabled)
	body := `{"gameId":"g1","player1Score":7,"player2Score":3}`

	first := post(t, mux, "k1", body)
	require.Equal(t, http.StatusCreated, first.Code)
	var rec Result
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &rec))
	assert.Equal(t, "g1", rec.GameID)
	assert.Equal(t, 7, rec.Player1Score)
	assert.NotEmpty(t, rec.ID)

	second := post(t, mux, "k1", body)
	assert.Equal(t, http.StatusConflict, second.Code)
	var dup Result
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &dup))
	assert.Equal(t, rec.ID, dup.ID)

	assert.Equal(t, 1, l.Len())
}

func TestPostResultWithoutKeyUsesGameID(t *testing.T) {
	l, _ := newTestLedger(t)
	mux := newMux(l, nil, slog.Disabled)

	require.Equal(t, http.StatusCreated, post(t, mux, "", `{"gameId":"g2"}`).Code)
	assert.Equal(t, http.StatusConflict, post(t, mux, "", `{"gameId":"g2"}`).Code)
	assert.Equal(t, "g2", l.List()[0].IdempotencyKey)
}

func TestPostResultValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	mux := newMux(l, nil, slog.Disabled)

	assert.Equal(t, http.StatusBadRequest, post(t, mux, "k", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, mux, "k", `{"gameId":" "}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, mux, "k", `{"gameId":"g","player1Score":-1}`).Code)
	assert.Zero(t, l.Len())
}

func TestChaosAnswersUnavailable(t *testing.T) {
	l, _ := newTestLedger(t)
	mux := newMux(l, NewChaos(0.5, func() float64 { return 0.2 }), slog.Disabled)

	assert.Equal(t, http.StatusServiceUnavailable, post(t, mux, "k", `{"gameId":"g"}`).Code)
	assert.Zero(t, l.Len())

	calm := newMux(l, NewChaos(0.5, func() float64 { return 0.7 }), slog.Disabled)
	assert.Equal(t, http.StatusCreated, post(t, calm, "k", `{"gameId":"g"}`).Code)
}

func TestHTTPSinkAgainstLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	srv := httptest.NewServer(newMux(l, nil, slog.Disabled))
	defer srv.Close()

	sink := delivery.NewHTTPSink(srv.URL, time.Second)
	require.NoError(t, sink.SubmitResult(context.Background(), "g9", 7, 5))
	require.NoError(t, sink.SubmitResult(context.Background(), "g9", 7, 5))

	results := l.List()
	require.Len(t, results, 1)
	assert.Equal(t, delivery.IdempotencyKey("g9"), results[0].IdempotencyKey)
	assert.Equal(t, 5, results[0].Player2Score)
}

func TestHTTPSinkSeesInjectedFailures(t *testing.T) {
	l, _ := newTestLedger(t)
	srv := httptest.NewServer(newMux(l, NewChaos(1, func() float64 { return 0 }), slog.Disabled))
	defer srv.Close()

	err := delivery.NewHTTPSink(srv.URL, time.Second).SubmitResult(context.Background(), "g1", 1, 0)
	assert.ErrorIs(t, err, delivery.ErrRejected)
}

func TestListAndHealth(t *testing.T) {
	l, clk := newTestLedger(t)
	l.Record("a", Result{GameID: "first"})
	clk.Add(time.Second)
	l.Record("b", Result{GameID: "second"})
	mux := newMux(l, nil, slog.Disabled)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results", nil))
	var list []Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].GameID)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, healthResponse{Status: "ok", Results: 2}, health)
}

func TestRecordsExpire(t *testing.T) {
	l, clk := newTestLedger(t)
	l.Record("old", Result{GameID: "old"})
	clk.Add(30 * time.Minute)
	l.Record("new", Result{GameID: "new"})

	clk.Add(30 * time.Minute)
	l.Expire()

	require.Eventually(t, func() bool { return l.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "new", l.List()[0].GameID)
}

func TestCleanupInterval(t *testing.T) {
	assert.Equal(t, time.Second, cleanupInterval(time.Second))
	assert.Equal(t, 15*time.Second, cleanupInterval(time.Minute))
	assert.Equal(t, 30*time.Second, cleanupInterval(time.Hour))
}
