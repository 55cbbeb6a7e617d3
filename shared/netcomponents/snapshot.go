package netcomponents

// Snapshot is an immutable copy of a match's simulation state. It is a value
// type; nothing holds a reference into the engine.
type Snapshot struct {
	Puck      PuckData   `json:"puck"`
	Paddle1   PaddleData `json:"paddle1"`
	Paddle2   PaddleData `json:"paddle2"`
	Score     ScoreData  `json:"score"`
	Timestamp int64      `json:"timestamp"` // Unix milliseconds
}
