package match

import (
	"slices"
	"time"

	"github.com/automoto/airhockey-mp/server/rooms"
	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netconfig"
)

// HandlePause freezes a playing match at a player's request. Requests
// arriving within the cooldown of that player's previous pause are ignored.
func (o *Orchestrator) HandlePause(c rooms.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room, p, ok := o.seat(c)
	if !ok {
		o.log.Debugf("Pause from unseated connection %s ignored", c.ID())
		return
	}
	if room.State != netconfig.MatchStatePlaying || room.Engine == nil {
		o.log.Debugf("Pause from %s ignored in %s room %s", p.ID, room.State, room.GameID)
		return
	}

	key := seatKey{gameID: room.GameID, playerID: p.ID}
	now := o.clock.Now()
	if last, ok := o.lastPause[key]; ok && now.Sub(last) < o.cfg.Match.PauseCooldown {
		o.log.Debugf("Pause from %s in room %s rate limited", p.ID, room.GameID)
		return
	}
	o.lastPause[key] = now

	saved := room.Engine.Pause()
	room.CancelTask(keyBroadcast)
	room.Pause = &rooms.PauseState{
		Reason:   netconfig.PauseReasonPlayer,
		PausedBy: p.Number,
		PausedAt: now,
		Saved:    saved,
	}
	room.State = netconfig.MatchStatePaused
	o.log.Infof("Room %s paused by player %d", room.GameID, p.Number)
	o.announcePause(room)
}

// HandleResume starts the resume countdown for a paused match. While a
// disconnected player has not returned the request is refused.
func (o *Orchestrator) HandleResume(c rooms.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room, p, ok := o.seat(c)
	if !ok {
		o.log.Debugf("Resume from unseated connection %s ignored", c.ID())
		return
	}
	ps := room.Pause
	if room.State != netconfig.MatchStatePaused || ps == nil {
		o.log.Debugf("Resume from %s ignored in %s room %s", p.ID, room.State, room.GameID)
		return
	}
	if ps.DisconnectedPlayerID != "" {
		dp, ok := o.rooms.Player(room.GameID, ps.DisconnectedPlayerID)
		if !ok || dp.Conn == nil || !dp.Conn.Open() {
			o.reply(c, messages.NewError(netconfig.ErrCodeUnauthorized, "Opponent is not connected"))
			return
		}
	}

	if ps.DisconnectedPlayerID != "" {
		o.cancelGrace(room, ps.DisconnectedPlayerID)
	}
	ps.GraceDeadline = time.Time{}
	room.State = netconfig.MatchStateResuming
	room.ResumeCountdown = o.cfg.Match.ResumeCountdownSeconds
	o.log.Infof("Room %s resuming (requested by player %d)", room.GameID, p.Number)

	if room.ResumeCountdown <= 0 {
		o.finishResume(room)
		return
	}
	o.rooms.Broadcast(room.GameID, messages.ResumeCountdown{Seconds: room.ResumeCountdown})
	o.scheduleResumeTick(room)
}

func (o *Orchestrator) scheduleResumeTick(room *rooms.Room) {
	o.after(room, keyResume, time.Second, func() {
		if room.State != netconfig.MatchStateResuming {
			return
		}
		room.ResumeCountdown--
		if room.ResumeCountdown <= 0 {
			o.finishResume(room)
			return
		}
		o.rooms.Broadcast(room.GameID, messages.ResumeCountdown{Seconds: room.ResumeCountdown})
		o.scheduleResumeTick(room)
	})
}

func (o *Orchestrator) finishResume(room *rooms.Room) {
	room.CancelTask(keyResume)
	room.ResumeCountdown = 0
	room.Pause = nil
	room.State = netconfig.MatchStatePlaying
	room.Engine.Resume()
	o.startBroadcast(room)
	o.rooms.Broadcast(room.GameID, messages.GameResumed{})
	o.log.Infof("Room %s resumed", room.GameID)

	if p, ok := o.away(room); ok {
		o.pauseForDisconnect(room, p)
	}
}

// HandleDisconnect reacts to a closed connection according to the room's
// state. A close from a connection already replaced by a reconnect only
// drops the stale handle.
func (o *Orchestrator) HandleDisconnect(c rooms.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	gameID, playerID, ok := o.rooms.Lookup(c)
	if !ok {
		return
	}
	room, ok := o.rooms.Room(gameID)
	if !ok {
		o.rooms.Forget(c)
		return
	}
	p, ok := o.rooms.Player(gameID, playerID)
	if !ok || p.Conn != c {
		o.log.Debugf("Stale disconnect for %s in room %s", playerID, gameID)
		o.rooms.Forget(c)
		return
	}

	o.log.Infof("Player %s disconnected from %s room %s", playerID, room.State, gameID)
	switch room.State {
	case netconfig.MatchStatePlaying:
		o.pauseForDisconnect(room, p)
	case netconfig.MatchStatePaused:
		deadline := o.armForfeit(room, p)
		if room.Pause.GraceDeadline.IsZero() {
			room.Pause.DisconnectedPlayerID = p.ID
			room.Pause.GraceDeadline = deadline
		}
		o.announcePause(room)
	case netconfig.MatchStateResuming:
		// finishResume pauses again for the absent player.
		o.armForfeit(room, p)
	case netconfig.MatchStateCountdown:
		room.CancelTask(keyCountdown)
		o.armPreGameGrace(room, p)
	case netconfig.MatchStateWaiting:
		o.armPreGameGrace(room, p)
	case netconfig.MatchStateEnded:
		if o.rooms.LeaveRoom(gameID, playerID) {
			o.forget(gameID)
			return
		}
		o.rooms.Broadcast(gameID, messages.OpponentDisconnected{})
	}
}

// pauseForDisconnect freezes a playing match and starts the forfeit timer
// for the player who dropped.
func (o *Orchestrator) pauseForDisconnect(room *rooms.Room, p rooms.Player) {
	saved := room.Engine.Pause()
	room.CancelTask(keyBroadcast)
	room.CancelTask(keyResume)
	room.State = netconfig.MatchStatePaused
	room.Pause = &rooms.PauseState{
		Reason:               netconfig.PauseReasonOpponentDisconnected,
		PausedAt:             o.clock.Now(),
		DisconnectedPlayerID: p.ID,
		Saved:                saved,
	}
	room.Pause.GraceDeadline = o.armForfeit(room, p)
	o.announcePause(room)
}

// armForfeit starts the in-game grace timer for p unless one is already
// running, and returns its deadline. On expiry the opponent wins, unless p
// came back on a new connection in the meantime.
func (o *Orchestrator) armForfeit(room *rooms.Room, p rooms.Player) time.Time {
	key := graceKey(p.ID)
	seat := seatKey{gameID: room.GameID, playerID: p.ID}
	if slices.Contains(room.TaskKeys(), key) {
		return o.graceUntil[seat]
	}

	grace := o.cfg.Match.InGameGrace
	deadline := o.clock.Now().Add(grace)
	o.graceUntil[seat] = deadline
	conn := p.Conn
	o.after(room, key, grace, func() {
		delete(o.graceUntil, seat)
		cur, ok := o.rooms.Player(room.GameID, p.ID)
		if !ok || cur.Conn != conn || (conn != nil && conn.Open()) {
			return
		}
		if !room.State.HasEngine() || room.Engine == nil {
			return
		}
		winner := cur.Number.Opponent()
		o.log.Infof("Player %s did not return to room %s, forfeiting", p.ID, room.GameID)
		o.endGame(room, winner, room.Engine.State().Score, "forfeit")
	})
	return deadline
}

// armPreGameGrace gives a player who dropped before the match started a
// short window to return before the room goes back to waiting.
func (o *Orchestrator) armPreGameGrace(room *rooms.Room, p rooms.Player) {
	key := graceKey(p.ID)
	if slices.Contains(room.TaskKeys(), key) {
		return
	}
	conn := p.Conn
	o.after(room, key, o.cfg.Match.PreGameGrace, func() {
		cur, ok := o.rooms.Player(room.GameID, p.ID)
		if !ok || cur.Conn != conn || (conn != nil && conn.Open()) {
			return
		}
		if room.State != netconfig.MatchStateWaiting && room.State != netconfig.MatchStateCountdown {
			return
		}
		o.log.Infof("Player %s did not return to room %s before the match", p.ID, room.GameID)
		o.abandonPreGame(room, p.ID)
	})
}

func (o *Orchestrator) cancelGrace(room *rooms.Room, playerID string) {
	room.CancelTask(graceKey(playerID))
	delete(o.graceUntil, seatKey{gameID: room.GameID, playerID: playerID})
}

// pausedMessage renders the room's pause from p's point of view.
func (o *Orchestrator) pausedMessage(room *rooms.Room, p rooms.Player) messages.GamePaused {
	ps := room.Pause
	msg := messages.GamePaused{Reason: ps.Reason, PausedBy: ps.PausedBy, CanResume: true}
	switch ps.Reason {
	case netconfig.PauseReasonPlayer:
		if ps.PausedBy != p.Number {
			msg.Reason = netconfig.PauseReasonOpponent
		}
	case netconfig.PauseReasonOpponentDisconnected:
		if p.ID == ps.DisconnectedPlayerID {
			msg.Reason = netconfig.PauseReasonConnectionLost
		}
	}
	if !ps.GraceDeadline.IsZero() {
		msg.CanResume = false
		msg.GracePeriodMs = max(ps.GraceDeadline.Sub(o.clock.Now()).Milliseconds(), 0)
	}
	return msg
}

// announcePause sends the current pause to every connected player.
func (o *Orchestrator) announcePause(room *rooms.Room) {
	for _, p := range o.rooms.Players(room.GameID) {
		if p.Conn == nil || !p.Conn.Open() {
			continue
		}
		if err := o.rooms.SendToPlayer(room.GameID, p.ID, o.pausedMessage(room, p)); err != nil {
			o.log.Warnf("Pause notice to %s failed: %v", p.ID, err)
		}
	}
}

// resync brings a reconnected player up to date with the room's current
// state.
func (o *Orchestrator) resync(room *rooms.Room, playerID string, c rooms.Conn) {
	p, ok := o.rooms.Player(room.GameID, playerID)
	if !ok {
		return
	}
	opponents := func() {
		for _, other := range o.rooms.Players(room.GameID) {
			if other.ID != playerID {
				o.reply(c, messages.OpponentJoined{OpponentID: other.ID})
			}
		}
	}

	switch room.State {
	case netconfig.MatchStateWaiting:
	case netconfig.MatchStateCountdown:
		opponents()
		if room.Countdown > 0 {
			o.reply(c, messages.Countdown{Seconds: room.Countdown})
		}
	case netconfig.MatchStatePlaying:
		opponents()
		o.reply(c, messages.StateUpdate{Snapshot: room.Engine.State()})
	case netconfig.MatchStatePaused:
		opponents()
		o.reply(c, messages.StateUpdate{Snapshot: room.Pause.Saved})
		if room.Pause.DisconnectedPlayerID == playerID {
			room.Pause.GraceDeadline = time.Time{}
			o.announcePause(room)
			return
		}
		o.reply(c, o.pausedMessage(room, p))
	case netconfig.MatchStateResuming:
		opponents()
		o.reply(c, messages.StateUpdate{Snapshot: room.Pause.Saved})
		o.reply(c, messages.ResumeCountdown{Seconds: room.ResumeCountdown})
	case netconfig.MatchStateEnded:
		if room.Result != nil {
			o.reply(c, messages.GameOver{Winner: room.Result.Winner, FinalScore: room.Result.Score})
		}
	}
}
