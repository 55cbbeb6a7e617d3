// Package netconfig defines lightweight enums shared by every part of the
// server that speaks to clients. It has no dependencies so it can be imported
// from the wire layer and the simulation alike.
package netconfig

// PlayerNumber identifies a seat at the table. Player 1 defends the bottom
// goal, player 2 the top goal. NoPlayer marks an absent value.
type PlayerNumber int

const (
	NoPlayer PlayerNumber = 0
	Player1  PlayerNumber = 1
	Player2  PlayerNumber = 2
)

// Opponent returns the other seat.
func (p PlayerNumber) Opponent() PlayerNumber {
	switch p {
	case Player1:
		return Player2
	case Player2:
		return Player1
	}
	return NoPlayer
}

// Valid reports whether p is a real seat.
func (p PlayerNumber) Valid() bool {
	return p == Player1 || p == Player2
}

// MatchStateID represents the current state of a room.
type MatchStateID int

const (
	MatchStateWaiting   MatchStateID = iota // Fewer than two players
	MatchStateCountdown                     // Pre-match countdown (3, 2, 1)
	MatchStatePlaying                       // Active gameplay
	MatchStatePaused                        // Simulation frozen
	MatchStateResuming                      // Resume countdown running
	MatchStateEnded                         // Terminal
)

var matchStateNames = map[MatchStateID]string{
	MatchStateWaiting:   "waiting",
	MatchStateCountdown: "countdown",
	MatchStatePlaying:   "playing",
	MatchStatePaused:    "paused",
	MatchStateResuming:  "resuming",
	MatchStateEnded:     "ended",
}

func (s MatchStateID) String() string {
	if name, ok := matchStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// HasEngine reports whether a room in this state owns a running or frozen
// simulation.
func (s MatchStateID) HasEngine() bool {
	return s == MatchStatePlaying || s == MatchStatePaused || s == MatchStateResuming
}

// PauseReason explains why a match is paused.
type PauseReason string

const (
	PauseReasonPlayer               PauseReason = "player_pause"
	PauseReasonOpponent             PauseReason = "opponent_pause"
	PauseReasonConnectionLost       PauseReason = "connection_lost"
	PauseReasonOpponentDisconnected PauseReason = "opponent_disconnected"
)

// Error codes carried by messages.Error.
const (
	ErrCodeRoomFull          = "ROOM_FULL"
	ErrCodeInvalidMessage    = "INVALID_MESSAGE"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeJoinFailed        = "JOIN_FAILED"
	ErrCodeConnectionTimeout = "CONNECTION_TIMEOUT"
)
