package netcomponents

import "github.com/yohamta/donburi"

// PuckData is the networked state of the puck.
type PuckData struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// PaddleData is the networked state of one paddle.
type PaddleData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScoreData holds both players' goals.
type ScoreData struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

var (
	Puck   = donburi.NewComponentType[PuckData]()
	Paddle = donburi.NewComponentType[PaddleData]()
	Score  = donburi.NewComponentType[ScoreData]()
)
