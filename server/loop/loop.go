// Package loop runs a callback at a fixed rate until stopped.
package loop

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
)

// GameLoop calls its tick function once per interval on its own goroutine.
// A panicking tick is logged and the loop keeps running.
type GameLoop struct {
	name     string
	clock    clock.Clock
	interval time.Duration
	tick     func()
	log      slog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func New(name string, clk clock.Clock, interval time.Duration, tick func(), log slog.Logger) *GameLoop {
	return &GameLoop{
		name:     name,
		clock:    clk,
		interval: interval,
		tick:     tick,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine.
func (g *GameLoop) Start() *GameLoop {
	go g.Run()
	return g
}

func (g *GameLoop) Run() {
	defer close(g.done)
	ticker := g.clock.Ticker(g.interval)
	defer ticker.Stop()

	g.log.Debugf("%s loop started (every %s)", g.name, g.interval)

	for {
		select {
		case <-g.stopChan:
			g.log.Debugf("%s loop stopped", g.name)
			return
		case <-ticker.C:
			g.safeTick()
		}
	}
}

// Stop signals the loop to exit without waiting for it. It is safe to call
// more than once and from inside the tick function.
func (g *GameLoop) Stop() bool {
	stopped := false
	g.stopOnce.Do(func() {
		close(g.stopChan)
		stopped = true
	})
	return stopped
}

// Done is closed once Run has returned.
func (g *GameLoop) Done() <-chan struct{} {
	return g.done
}

func (g *GameLoop) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorf("%s tick panicked: %v", g.name, r)
		}
	}()
	g.tick()
}
