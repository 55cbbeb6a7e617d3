// Package messages defines the closed set of messages exchanged with clients.
// Both directions are sealed interfaces: only types declared here satisfy
// them, so a type switch over the declared types is exhaustive.
package messages

// ClientMessage is any message a client may send.
type ClientMessage interface {
	clientMessage()
}

// JoinRoom asks to join (or rejoin) a room.
type JoinRoom struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

// PaddleMove carries the desired paddle position in table coordinates.
type PaddleMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PlayerReady struct{}

type Ping struct{}

type PauseRequest struct{}

type ResumeRequest struct{}

// QuitGame forfeits the current match.
type QuitGame struct{}

// PlayerExit leaves a finished match's room.
type PlayerExit struct{}

func (JoinRoom) clientMessage() {}
func (PaddleMove) clientMessage() {}
func (PlayerReady) clientMessage() {}
func (Ping) clientMessage() {}
func (PauseRequest) clientMessage() {}
func (ResumeRequest) clientMessage() {}
func (QuitGame) clientMessage() {}
func (PlayerExit) clientMessage() {}
