package match

import (
	"errors"
	"slices"
	"time"

	"github.com/automoto/airhockey-mp/server/rooms"
	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netcomponents"
	"github.com/automoto/airhockey-mp/shared/netconfig"
)

// HandleJoin seats a player, creating the room on first join. The second
// distinct player starts the countdown; a returning player is resynced to
// whatever the room is doing now.
func (o *Orchestrator) HandleJoin(c rooms.Conn, gameID, playerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res, err := o.rooms.Join(gameID, playerID, c)
	if err != nil {
		code, text := netconfig.ErrCodeJoinFailed, "Failed to join room"
		switch {
		case errors.Is(err, rooms.ErrRoomFull):
			code, text = netconfig.ErrCodeRoomFull, "Room is full"
		case errors.Is(err, rooms.ErrGameInProgress):
			text = "Game already in progress"
		case errors.Is(err, rooms.ErrAlreadyJoined):
			text = "Already in another room"
		}
		o.log.Infof("Join %s/%s rejected: %v", gameID, playerID, err)
		o.reply(c, messages.NewError(code, text))
		return
	}

	room := res.Room
	o.reply(c, messages.RoomJoined{GameID: gameID, PlayerNumber: res.Number})

	if res.Reconnected {
		o.cancelGrace(room, playerID)
		o.resync(room, playerID, c)
		if room.State == netconfig.MatchStateCountdown && !slices.Contains(room.TaskKeys(), keyCountdown) {
			o.runCountdown(room)
		}
		return
	}

	players := o.rooms.Players(gameID)
	if len(players) < 2 || room.State != netconfig.MatchStateWaiting || o.starting[gameID] {
		return
	}
	o.starting[gameID] = true
	for _, p := range players {
		for _, other := range players {
			if other.ID != p.ID {
				_ = o.rooms.SendToPlayer(gameID, p.ID, messages.OpponentJoined{OpponentID: other.ID})
			}
		}
	}
	o.startCountdown(room)
}

func (o *Orchestrator) startCountdown(room *rooms.Room) {
	room.State = netconfig.MatchStateCountdown
	room.Countdown = o.cfg.Match.CountdownSeconds
	o.log.Infof("Room %s counting down from %d", room.GameID, room.Countdown)

	if room.Countdown > 0 {
		o.rooms.Broadcast(room.GameID, messages.Countdown{Seconds: room.Countdown})
	}
	o.runCountdown(room)
}

// runCountdown ticks the countdown on from its current value. The countdown
// stays frozen while a seat is away; the player's return or the expiry of
// their grace period decides what happens next.
func (o *Orchestrator) runCountdown(room *rooms.Room) {
	if p, ok := o.away(room); ok {
		o.log.Infof("Room %s countdown held at %d for %s", room.GameID, room.Countdown, p.ID)
		return
	}
	if room.Countdown <= 0 {
		o.startGame(room)
		return
	}
	o.scheduleCountdownTick(room)
}

// away returns the first seated player without an open connection.
func (o *Orchestrator) away(room *rooms.Room) (rooms.Player, bool) {
	for _, p := range o.rooms.Players(room.GameID) {
		if p.Conn == nil || !p.Conn.Open() {
			return p, true
		}
	}
	return rooms.Player{}, false
}

func (o *Orchestrator) scheduleCountdownTick(room *rooms.Room) {
	o.after(room, keyCountdown, time.Second, func() {
		if room.State != netconfig.MatchStateCountdown {
			return
		}
		room.Countdown--
		if room.Countdown <= 0 {
			o.startGame(room)
			return
		}
		o.rooms.Broadcast(room.GameID, messages.Countdown{Seconds: room.Countdown})
		o.scheduleCountdownTick(room)
	})
}

// startGame creates the engine and starts the tick and broadcast loops.
func (o *Orchestrator) startGame(room *rooms.Room) {
	delete(o.starting, room.GameID)
	room.CancelTask(keyCountdown)
	room.Countdown = 0

	eng := o.newEngine()
	eng.OnGoal(func(scorer netconfig.PlayerNumber) {
		o.handleGoal(room, eng, scorer)
	})
	room.Engine = eng
	room.State = netconfig.MatchStatePlaying
	eng.Start()

	o.rooms.Broadcast(room.GameID, messages.Countdown{Seconds: 0})
	o.startBroadcast(room)
	o.log.Infof("Room %s playing", room.GameID)
}

func (o *Orchestrator) handleGoal(room *rooms.Room, eng rooms.Engine, scorer netconfig.PlayerNumber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.live(room) || room.Engine != eng || room.State == netconfig.MatchStateEnded {
		return
	}

	score := eng.State().Score
	o.rooms.Broadcast(room.GameID, messages.Goal{Scorer: scorer, NewScore: score})

	switch max := o.cfg.Game.MaxScore; {
	case score.Player1 >= max:
		o.endGame(room, netconfig.Player1, score, "max score")
	case score.Player2 >= max:
		o.endGame(room, netconfig.Player2, score, "max score")
	}
}

// endGame terminates a match exactly once: it stops the engine and every
// room task, announces the winner and submits the result.
func (o *Orchestrator) endGame(room *rooms.Room, winner netconfig.PlayerNumber, score netcomponents.ScoreData, reason string) {
	id := room.GameID
	if o.ending[id] || room.State == netconfig.MatchStateEnded {
		return
	}
	o.ending[id] = true
	defer delete(o.ending, id)

	room.CancelAllTasks()
	if room.Engine != nil {
		room.Engine.Stop()
		room.Engine = nil
	}
	room.Pause = nil
	room.State = netconfig.MatchStateEnded
	room.Result = &rooms.Result{Winner: winner, Score: score}
	delete(o.starting, id)

	o.log.Infof("Room %s ended (%s): player %d wins %d-%d", id, reason, winner, score.Player1, score.Player2)
	o.rooms.Broadcast(id, messages.GameOver{Winner: winner, FinalScore: score})
	o.results.SubmitAsync(id, score.Player1, score.Player2)

	o.after(room, keyCleanup, o.cfg.Match.EndedRoomTTL, func() {
		o.rooms.CleanupRoom(id)
		o.forget(id)
	})
}

// HandlePaddleMove forwards a paddle target while the match is playing.
func (o *Orchestrator) HandlePaddleMove(c rooms.Conn, x, y float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room, p, ok := o.seat(c)
	if !ok || room.State != netconfig.MatchStatePlaying || room.Engine == nil {
		return
	}
	room.Engine.SetPaddleTarget(p.Number, x, y)
}

// HandleQuit forfeits an active match to the opponent. Before the match
// starts it simply leaves the room.
func (o *Orchestrator) HandleQuit(c rooms.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room, p, ok := o.seat(c)
	if !ok {
		o.log.Debugf("Quit from unseated connection %s ignored", c.ID())
		return
	}
	o.quit(room, p)
}

func (o *Orchestrator) quit(room *rooms.Room, p rooms.Player) {
	switch room.State {
	case netconfig.MatchStatePlaying, netconfig.MatchStatePaused, netconfig.MatchStateResuming:
		winner := p.Number.Opponent()
		score := room.Engine.State().Score
		o.rooms.Broadcast(room.GameID, messages.OpponentQuit{Winner: winner, FinalScore: score}, p.ID)
		o.endGame(room, winner, score, "quit")
	case netconfig.MatchStateWaiting, netconfig.MatchStateCountdown:
		o.abandonPreGame(room, p.ID)
	case netconfig.MatchStateEnded:
		o.log.Debugf("Quit from %s in ended room %s ignored", p.ID, room.GameID)
	}
}

// HandleExit leaves the room. Exiting a match in progress forfeits it first.
func (o *Orchestrator) HandleExit(c rooms.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room, p, ok := o.seat(c)
	if !ok {
		return
	}
	if room.State != netconfig.MatchStateEnded {
		o.quit(room, p)
	}
	if !o.live(room) {
		return
	}
	if room.State == netconfig.MatchStateEnded {
		o.rooms.Broadcast(room.GameID, messages.OpponentExited{}, p.ID)
	}
	if o.rooms.LeaveRoom(room.GameID, p.ID) {
		o.forget(room.GameID)
	}
}

// abandonPreGame removes a player before the match started, cancelling the
// countdown and telling whoever is left.
func (o *Orchestrator) abandonPreGame(room *rooms.Room, playerID string) {
	id := room.GameID
	room.CancelTask(keyCountdown)
	o.cancelGrace(room, playerID)
	if room.State == netconfig.MatchStateCountdown {
		room.State = netconfig.MatchStateWaiting
		room.Countdown = 0
		o.log.Infof("Room %s countdown cancelled, back to waiting", id)
	}
	delete(o.starting, id)

	if o.rooms.LeaveRoom(id, playerID) {
		o.forget(id)
		return
	}
	o.rooms.Broadcast(id, messages.OpponentDisconnected{})
}
