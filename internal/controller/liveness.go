package controller

import (
	"time"

	"github.com/robalobadob/meeples-gambit/internal/devices"
	"github.com/robalobadob/meeples-gambit/internal/game"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
)

// onConnection handles base station link changes.
func (c *Controller) onConnection(conn protocol.Connection, now time.Time) {
	switch conn {
	case protocol.Disconnected:
		if c.linkDown {
			return
		}
		c.log.Warn().Str("phase", string(c.t.phase)).Msg("base station link lost")
		c.linkDown = true
		c.t.linkLostAt = now
		c.interrupt(now)
	case protocol.Connected:
		c.log.Info().Msg("base station link up")
		c.linkDown = false
		c.interrupt(now)
		c.setPhase(PhaseRefreshPending, now)
	}
}

// refreshed runs once the refresh grace period after a reconnect has passed.
func (c *Controller) refreshed(now time.Time) {
	c.t.endOutage(now)
	if c.game == nil {
		c.t = timers{}
		c.setPhase(PhaseLobby, now)
		c.status(protocol.StatusLobby)
		c.show(lobbyDisplay())
		return
	}
	c.status(protocol.StatusPlaying)
	if c.disconnectedSlot >= 0 {
		c.resendDisplay()
		c.setPhase(PhaseMeepleDisconnect, now)
		return
	}
	c.resume(now)
	c.resendDisplay()
}

// interrupt suspends the running phase. Nested interruptions keep the
// originally suspended phase.
func (c *Controller) interrupt(now time.Time) {
	if c.t.phase.interrupting() || !c.t.pausedAt.IsZero() {
		return
	}
	c.t.previousPhase = c.t.phase
	c.t.previousStart = c.t.phaseStart
	c.t.pausedAt = now
}

// resume restores the suspended phase with every deadline shifted by the pause.
func (c *Controller) resume(now time.Time) {
	if c.t.pausedAt.IsZero() {
		return
	}
	c.t.shift(now.Sub(c.t.pausedAt))
	c.t.phase = c.t.previousPhase
	c.t.phaseStart = c.t.previousStart
	c.t.previousPhase = ""
	c.t.pausedAt = time.Time{}

	if c.t.phase == PhaseWaitForMove && c.game != nil {
		if p := c.game.CurrentPlayer(); p != nil && !c.reg.Online(p.ID) {
			c.setPhase(PhaseWaitConfirm, now)
			c.show(protocol.NewDisplay(p.Label()+" sensor lost", "Press to confirm", p.ID+1))
		}
	}
	c.log.Debug().Str("phase", string(c.t.phase)).Msg("resumed")
}

// resendDisplay repeats the last display. With nothing cached it falls back
// to the phase's natural prompt.
func (c *Controller) resendDisplay() {
	if last := c.bus.LastDisplay(); len(last) > 0 {
		c.publish(c.topics.Display(), last, noOpts)
		return
	}
	switch {
	case c.game == nil:
		c.show(lobbyDisplay())
	case c.game.CurrentPlayer() != nil:
		c.show(c.turnDisplay())
	}
}

// onRegister assigns a slot and publishes the node's config.
func (c *Controller) onRegister(id string, now time.Time) error {
	slot, fresh, err := c.reg.Register(id)
	if err != nil {
		c.log.Warn().Err(err).Str("device", id).Msg("registration refused")
		return nil
	}
	cfg := protocol.DeviceConfig{
		Slot:        slot,
		SensorTopic: c.topics.Sensor(slot),
		LEDTopic:    c.topics.LED(slot),
	}
	c.publish(c.topics.DeviceConfig(id), cfg, retained)
	c.log.Info().Str("device", id).Int("slot", slot).Bool("fresh", fresh).Msg("device registered")
	c.onDeviceStatus(id, devices.Online, now)
	return nil
}

// onDeviceStatus tracks node reachability and pauses the game around drops.
func (c *Controller) onDeviceStatus(id string, st devices.Status, now time.Time) {
	slot, assigned := c.reg.UpdateStatus(id, st)
	if !assigned || c.game == nil || c.game.Player(slot) == nil {
		return
	}
	switch c.t.phase {
	case PhaseLobby, PhaseGameOver:
		return
	}
	switch st {
	case devices.Offline:
		if c.disconnectedSlot >= 0 {
			return
		}
		c.log.Warn().Str("device", id).Int("slot", slot).Msg("player device offline")
		c.disconnectedSlot = slot
		c.t.meepleSince = now
		if c.linkDown {
			// the refresh after the outage enters MEEPLE_DISCONNECT
			return
		}
		c.interrupt(now)
		if c.t.phase != PhaseRefreshPending {
			c.setPhase(PhaseMeepleDisconnect, now)
		}
		c.notice(protocol.NewDisplay(game.Label(slot)+" disconnected", "Waiting..."))
	case devices.Online:
		if slot != c.disconnectedSlot {
			return
		}
		c.log.Info().Str("device", id).Int("slot", slot).Msg("player device back")
		c.disconnectedSlot = -1
		if c.t.phase == PhaseMeepleDisconnect && !c.linkDown {
			c.resume(now)
			c.resendDisplay()
		}
	}
}

// checkLowPlayers aborts the game after too long with too few online devices.
// It reports whether the game was aborted.
func (c *Controller) checkLowPlayers(now time.Time) bool {
	if c.game == nil || c.tm.MinConnected <= 0 {
		c.t.lowSince = time.Time{}
		return false
	}
	switch c.t.phase {
	case PhaseLobby, PhaseGameOver, PhaseRefreshPending:
		return false
	}
	if c.reg.ConnectedCount() >= c.tm.MinConnected {
		c.t.lowSince = time.Time{}
		return false
	}
	if c.t.lowSince.IsZero() {
		c.t.lowSince = now
		c.log.Warn().Int("connected", c.reg.ConnectedCount()).Int("min", c.tm.MinConnected).Msg("too few devices connected")
		return false
	}
	if now.Sub(c.t.lowSince) < c.tm.LowPlayersTimeout {
		return false
	}
	c.notice(protocol.NewDisplay("Too few players", "Game reset"))
	c.abortGame(now, "too few devices connected")
	return true
}
