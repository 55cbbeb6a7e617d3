package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	require.NoError(t, C.Validate())
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	a.Game.MaxScore = 1

	assert.Equal(t, 7, Default().Game.MaxScore)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero width":        func(c *Config) { c.Table.Width = 0 },
		"goal too wide":     func(c *Config) { c.Table.GoalWidth = c.Table.Width },
		"huge paddle":       func(c *Config) { c.Paddle.Radius = c.Table.Height },
		"zero puck mass":    func(c *Config) { c.Puck.Mass = 0 },
		"paddle friction 2": func(c *Config) { c.Paddle.Friction = 2 },
		"zero tick rate":    func(c *Config) { c.Game.TickRate = 0 },
		"zero max score":    func(c *Config) { c.Game.MaxScore = 0 },
		"zero attempts":     func(c *Config) { c.Delivery.MaxAttempts = 0 },
		"negative resume":   func(c *Config) { c.Match.ResumeCountdownSeconds = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestIntervals(t *testing.T) {
	g := GameConfig{TickRate: 50, BroadcastRate: 20}
	assert.Equal(t, 20*time.Millisecond, g.TickInterval())
	assert.Equal(t, 50*time.Millisecond, g.BroadcastInterval())
}
