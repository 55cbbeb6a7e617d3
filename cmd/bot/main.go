// Command bot joins a room and plays a simple defensive game. Two bots in
// the same room exercise a full match end to end.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/network"
	"github.com/automoto/airhockey-mp/server/logging"
	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netcomponents"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/google/uuid"
)

func main() {
	addr := flag.String("server", "localhost:3001", "Server address")
	gameID := flag.String("game", "bot-match", "Room to join")
	playerID := flag.String("player", "", "Player ID (random when empty)")
	rate := flag.Int("rate", 30, "Paddle updates per second")
	level := flag.String("loglevel", "info", "Log level")
	flag.Parse()

	if *playerID == "" {
		*playerID = "bot-" + uuid.NewString()[:8]
	}

	logs, err := logging.New(os.Stdout, *level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
	log := logs.Logger("BOT")

	client := network.NewClient(log)
	client.Connect(*addr, *gameID, *playerID)
	defer client.Disconnect()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	table, paddle := config.C.Table, config.C.Paddle
	for {
		select {
		case <-sig:
			_ = client.SendMessage(messages.QuitGame{})
			return
		case ev := <-client.Events():
			switch m := ev.(type) {
			case messages.GameOver:
				log.Infof("Game over: player %d wins %d-%d", m.Winner, m.FinalScore.Player1, m.FinalScore.Player2)
				_ = client.SendMessage(messages.PlayerExit{})
				return
			case messages.Error:
				log.Warnf("Server error %s: %s", m.Code, m.Message)
			default:
				log.Debugf("Event %s", ev.Type())
			}
		case <-ticker.C:
			if client.State() == network.StateError {
				log.Errorf("%v", client.LastError())
				os.Exit(1)
			}
			s := client.LatestState()
			me := client.PlayerNumber()
			if s == nil || !me.Valid() {
				continue
			}
			x, y := aim(s.Snapshot, me, table, paddle)
			if err := client.SendMessage(messages.PaddleMove{X: x, Y: y}); err != nil {
				log.Debugf("Paddle move failed: %v", err)
			}
		}
	}
}

// aim tracks the puck across the table and steps between it and the own
// goal while it is in the bot's half.
func aim(s netcomponents.Snapshot, me netconfig.PlayerNumber, t config.TableConfig, p config.PaddleConfig) (float64, float64) {
	side := 1.0
	if me == netconfig.Player2 {
		side = -1
	}
	reach := t.HalfWidth() - p.Radius
	x := gamemath.Clamp(s.Puck.X, -reach, reach)

	y := side * t.Height / 4
	if s.Puck.Y*side > 0 {
		y = s.Puck.Y + side*p.Radius*2
	}
	y = gamemath.Clamp(y*side, p.Radius, t.HalfHeight()-p.Radius) * side
	return x, y
}
