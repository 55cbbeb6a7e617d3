package config

import (
	"errors"
	"fmt"
	"time"
)

// TableConfig describes the playing surface. Coordinates are centred on the
// table, so the playable area spans [-Width/2, Width/2] x [-Height/2, Height/2].
type TableConfig struct {
	Width         float64
	Height        float64
	WallThickness float64
	GoalWidth     float64 // Opening in each short wall
}

// HalfWidth returns half the table width.
func (t TableConfig) HalfWidth() float64 { return t.Width / 2 }

// HalfHeight returns half the table height.
func (t TableConfig) HalfHeight() float64 { return t.Height / 2 }

// PuckConfig contains puck body values.
type PuckConfig struct {
	Radius      float64
	Mass        float64
	Restitution float64
	Friction    float64
	FrictionAir float64 // Fraction of velocity lost per reference step
	MaxSpeed    float64 // Units per reference step
}

// PaddleConfig contains paddle body values.
type PaddleConfig struct {
	Radius           float64
	Mass             float64
	Restitution      float64
	Friction         float64
	VelocityTransfer float64 // Share of paddle speed added to the puck on contact
	MaxVelocity      float64 // Cap on the reported paddle speed
}

// WallConfig contains wall body values.
type WallConfig struct {
	Restitution float64
}

// GameConfig contains simulation timing and scoring rules.
type GameConfig struct {
	TickRate      int           // Physics updates per second
	BroadcastRate int           // State broadcasts per second
	MaxStep       time.Duration // Longest single simulation step
	MaxScore      int
	GoalPause     time.Duration // Puck stays frozen this long after a goal
}

// MatchConfig contains room lifecycle timing.
type MatchConfig struct {
	CountdownSeconds       int
	ResumeCountdownSeconds int
	PauseCooldown          time.Duration // Minimum gap between pause requests per player

	// Disconnect grace periods. PreGameGrace applies while waiting or
	// counting down, InGameGrace while a match is being played.
	PreGameGrace time.Duration
	InGameGrace  time.Duration

	EndedRoomTTL time.Duration // Ended rooms are destroyed after this long
}

// DeliveryConfig contains result retry queue values.
type DeliveryConfig struct {
	SweepInterval time.Duration
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	MaxAge        time.Duration
	SubmitTimeout time.Duration
}

// ServerConfig contains network-facing settings.
type ServerConfig struct {
	Port        uint
	AdminPort   uint
	JoinTimeout time.Duration // Connections must join a room within this window
	LedgerURL   string
	AppName     string // gdata application name for persisted state
}

// Config aggregates every tunable the server recognises.
type Config struct {
	Table    TableConfig
	Puck     PuckConfig
	Paddle   PaddleConfig
	Wall     WallConfig
	Game     GameConfig
	Match    MatchConfig
	Delivery DeliveryConfig
	Server   ServerConfig
}

// C holds the process defaults. Components take a *Config explicitly; C is
// only read by the server binary.
var C *Config

func init() {
	C = Default()
}

// Default returns a fresh copy of the production configuration.
func Default() *Config {
	return &Config{
		Table: TableConfig{
			Width:         400,
			Height:        600,
			WallThickness: 20,
			GoalWidth:     150,
		},
		Puck: PuckConfig{
			Radius:      12,
			Mass:        0.1,
			Restitution: 0.98,
			Friction:    0,
			FrictionAir: 0.0005,
			MaxSpeed:    25,
		},
		Paddle: PaddleConfig{
			Radius:           25,
			Mass:             1,
			Restitution:      0.8,
			Friction:         0.1,
			VelocityTransfer: 0.5,
			MaxVelocity:      15,
		},
		Wall: WallConfig{
			Restitution: 0.9,
		},
		Game: GameConfig{
			TickRate:      60,
			BroadcastRate: 30,
			MaxStep:       50 * time.Millisecond,
			MaxScore:      7,
			GoalPause:     1500 * time.Millisecond,
		},
		Match: MatchConfig{
			CountdownSeconds:       3,
			ResumeCountdownSeconds: 3,
			PauseCooldown:          5 * time.Second,
			PreGameGrace:           10 * time.Second,
			InGameGrace:            30 * time.Second,
			EndedRoomTTL:           60 * time.Second,
		},
		Delivery: DeliveryConfig{
			SweepInterval: 10 * time.Second,
			BaseDelay:     5 * time.Second,
			MaxDelay:      5 * time.Minute,
			MaxAttempts:   10,
			MaxAge:        time.Hour,
			SubmitTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Port:        3001,
			AdminPort:   3002,
			JoinTimeout: 30 * time.Second,
			LedgerURL:   "http://localhost:8080",
			AppName:     "airhockey-mp",
		},
	}
}

// Validate reports the first setting that would make the simulation or the
// timers misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Table.Width <= 0 || c.Table.Height <= 0:
		return errors.New("table dimensions must be positive")
	case c.Table.GoalWidth <= 0 || c.Table.GoalWidth >= c.Table.Width:
		return fmt.Errorf("goal width %.1f must be within (0, %.1f)", c.Table.GoalWidth, c.Table.Width)
	case c.Puck.Radius <= 0 || c.Paddle.Radius <= 0:
		return errors.New("body radii must be positive")
	case c.Paddle.Radius*2 >= c.Table.Width || c.Paddle.Radius*2 >= c.Table.HalfHeight():
		return errors.New("paddle does not fit in its half of the table")
	case c.Puck.Mass <= 0 || c.Paddle.Mass <= 0:
		return errors.New("body masses must be positive")
	case c.Puck.Friction < 0 || c.Puck.Friction > 1 || c.Paddle.Friction < 0 || c.Paddle.Friction > 1:
		return errors.New("friction must be within [0, 1]")
	case c.Puck.MaxSpeed <= 0:
		return errors.New("puck max speed must be positive")
	case c.Game.TickRate <= 0 || c.Game.BroadcastRate <= 0:
		return errors.New("tick and broadcast rates must be positive")
	case c.Game.MaxStep <= 0:
		return errors.New("max step must be positive")
	case c.Game.MaxScore <= 0:
		return errors.New("max score must be positive")
	case c.Match.CountdownSeconds < 0 || c.Match.ResumeCountdownSeconds < 0:
		return errors.New("countdowns cannot be negative")
	case c.Delivery.SweepInterval <= 0 || c.Delivery.BaseDelay <= 0:
		return errors.New("delivery intervals must be positive")
	case c.Delivery.MaxAttempts <= 0:
		return errors.New("max attempts must be positive")
	}
	return nil
}

// TickInterval is the wall-clock period of one physics tick.
func (g GameConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}

// BroadcastInterval is the wall-clock period of one state broadcast.
func (g GameConfig) BroadcastInterval() time.Duration {
	return time.Second / time.Duration(g.BroadcastRate)
}
