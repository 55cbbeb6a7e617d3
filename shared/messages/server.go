package messages

import (
	"github.com/automoto/airhockey-mp/shared/netcomponents"
	"github.com/automoto/airhockey-mp/shared/netconfig"
)

// ServerMessage is any message the server sends to clients.
type ServerMessage interface {
	// Type is the wire name of the message.
	Type() string
	serverMessage()
}

type RoomJoined struct {
	GameID       string                 `json:"gameId"`
	PlayerNumber netconfig.PlayerNumber `json:"playerNumber"`
}

type OpponentJoined struct {
	OpponentID string `json:"opponentId"`
}

type OpponentDisconnected struct{}

type Countdown struct {
	Seconds int `json:"seconds"`
}

// StateUpdate is the periodic authoritative snapshot.
type StateUpdate struct {
	netcomponents.Snapshot
}

type Goal struct {
	Scorer   netconfig.PlayerNumber  `json:"scorer"`
	NewScore netcomponents.ScoreData `json:"newScore"`
}

type GameOver struct {
	Winner     netconfig.PlayerNumber  `json:"winner"`
	FinalScore netcomponents.ScoreData `json:"finalScore"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Pong struct{}

// GamePaused announces a pause. PausedBy is NoPlayer when the pause was not
// requested by a player. GracePeriodMs is set while a disconnected player
// may still return.
type GamePaused struct {
	Reason        netconfig.PauseReason  `json:"reason"`
	PausedBy      netconfig.PlayerNumber `json:"pausedBy"`
	CanResume     bool                   `json:"canResume"`
	GracePeriodMs int64                  `json:"gracePeriodMs,omitempty"`
}

type ResumeCountdown struct {
	Seconds int `json:"seconds"`
}

type GameResumed struct{}

// OpponentQuit tells the remaining player that the other side forfeited.
type OpponentQuit struct {
	Winner     netconfig.PlayerNumber  `json:"winner"`
	FinalScore netcomponents.ScoreData `json:"finalScore"`
}

type OpponentExited struct{}

func (RoomJoined) Type() string { return "room-joined" }
func (OpponentJoined) Type() string { return "opponent-joined" }
func (OpponentDisconnected) Type() string { return "opponent-disconnected" }
func (Countdown) Type() string { return "countdown" }
func (StateUpdate) Type() string { return "state-update" }
func (Goal) Type() string { return "goal" }
func (GameOver) Type() string { return "game-over" }
func (Error) Type() string { return "error" }
func (Pong) Type() string { return "pong" }
func (GamePaused) Type() string { return "game-paused" }
func (ResumeCountdown) Type() string { return "resume-countdown" }
func (GameResumed) Type() string { return "game-resumed" }
func (OpponentQuit) Type() string { return "opponent-quit" }
func (OpponentExited) Type() string { return "opponent-exited" }

func (RoomJoined) serverMessage() {}
func (OpponentJoined) serverMessage() {}
func (OpponentDisconnected) serverMessage() {}
func (Countdown) serverMessage() {}
func (StateUpdate) serverMessage() {}
func (Goal) serverMessage() {}
func (GameOver) serverMessage() {}
func (Error) serverMessage() {}
func (Pong) serverMessage() {}
func (GamePaused) serverMessage() {}
func (ResumeCountdown) serverMessage() {}
func (GameResumed) serverMessage() {}
func (OpponentQuit) serverMessage() {}
func (OpponentExited) serverMessage() {}

// NewError builds an error reply.
func NewError(code, message string) Error {
	return Error{Code: code, Message: message}
}
