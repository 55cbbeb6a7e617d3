package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRejected is returned when the ledger answers with an unexpected status.
var ErrRejected = errors.New("ledger rejected result")

// resultNamespace scopes idempotency keys derived from game IDs.
var resultNamespace = uuid.MustParse("6f1d3c1e-8a52-4c1f-9a7e-2f0b5d1c9e44")

// IdempotencyKey is the stable key sent with every delivery of gameID, so
// the ledger can recognise retries of a result it already recorded.
func IdempotencyKey(gameID string) string {
	return uuid.NewSHA1(resultNamespace, []byte(gameID)).String()
}

// HTTPSink posts results to the ledger's HTTP API.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

type resultRequest struct {
	GameID       string `json:"gameId"`
	Player1Score int    `json:"player1Score"`
	Player2Score int    `json:"player2Score"`
}

func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SubmitResult posts one result. A 409 means the ledger already holds it and
// counts as delivered.
func (s *HTTPSink) SubmitResult(ctx context.Context, gameID string, score1, score2 int) error {
	body, err := json.Marshal(resultRequest{
		GameID:       gameID,
		Player1Score: score1,
		Player2Score: score2,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/results", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", IdempotencyKey(gameID))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	}
	return fmt.Errorf("%w: unexpected status %d", ErrRejected, resp.StatusCode)
}
