package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/automoto/airhockey-mp/server/delivery"
	"github.com/automoto/airhockey-mp/server/match"
	"github.com/decred/slog"
)

// RoomLister reports live rooms.
type RoomLister interface {
	Rooms() []match.RoomSummary
}

// QueueReporter reports the result delivery backlog.
type QueueReporter interface {
	Status() delivery.Status
	Len() int
}

type healthResponse struct {
	Status         string `json:"status"`
	Rooms          int    `json:"rooms"`
	PendingResults int    `json:"pendingResults"`
}

// AdminMux serves the read-only operator endpoints.
func AdminMux(rooms RoomLister, queue QueueReporter, log slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", Health(rooms, queue, log))
	mux.HandleFunc("GET /api/queue", QueueStatus(queue, log))
	mux.HandleFunc("GET /api/rooms", ListRooms(rooms, log))
	return mux
}

func Health(rooms RoomLister, queue QueueReporter, log slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, log, healthResponse{
			Status:         "ok",
			Rooms:          len(rooms.Rooms()),
			PendingResults: queue.Len(),
		})
	}
}

func QueueStatus(queue QueueReporter, log slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, log, queue.Status())
	}
}

func ListRooms(rooms RoomLister, log slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, log, rooms.Rooms())
	}
}

func writeJSON(w http.ResponseWriter, log slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Admin encode error: %v", err)
	}
}
