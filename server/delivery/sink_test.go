package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSinkPostsResult(t *testing.T) {
	var got resultRequest
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/results", r.URL.Path)
		key = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/", time.Second)
	require.NoError(t, sink.SubmitResult(context.Background(), "g1", 7, 4))

	assert.Equal(t, resultRequest{GameID: "g1", Player1Score: 7, Player2Score: 4}, got)
	assert.Equal(t, IdempotencyKey("g1"), key)
}

func TestHTTPSinkStatusHandling(t *testing.T) {
	cases := map[int]bool{
		http.StatusOK:                  true,
		http.StatusNoContent:           true,
		http.StatusConflict:            true,
		http.StatusBadRequest:          false,
		http.StatusServiceUnavailable:  false,
		http.StatusInternalServerError: false,
	}
	for status, ok := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		err := NewHTTPSink(srv.URL, time.Second).SubmitResult(context.Background(), "g", 1, 2)
		if ok {
			assert.NoError(t, err, "status %d", status)
		} else {
			assert.ErrorIs(t, err, ErrRejected, "status %d", status)
		}
		srv.Close()
	}
}

func TestHTTPSinkTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	err := NewHTTPSink(srv.URL, time.Second).SubmitResult(context.Background(), "g", 1, 2)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestIdempotencyKeyIsStablePerGame(t *testing.T) {
	assert.Equal(t, IdempotencyKey("g1"), IdempotencyKey("g1"))
	assert.NotEqual(t, IdempotencyKey("g1"), IdempotencyKey("g2"))
}
