package controller

import "time"

// Tick advances timer-driven phases. It is a no-op while the base station link is down.
func (c *Controller) Tick(now time.Time) {
	if c.linkDown {
		return
	}
	if c.checkLowPlayers(now) {
		return
	}
	switch c.t.phase {
	case PhaseIdle:
		if c.game == nil || c.game.CurrentPlayer() == nil || c.prompted {
			return
		}
		if !now.Before(c.t.ignoreInputsUntil) {
			c.promptTurn()
		}

	case PhaseInitiativeCooldown:
		if c.elapsed(now) >= c.tm.InitiativeHold {
			c.prompted = false
			c.setPhase(PhaseIdle, now)
		}

	case PhaseAnnounce:
		if c.elapsed(now) >= c.tm.Announce {
			c.beginCountdown(now)
		}

	case PhaseCountdown:
		if c.elapsed(now) >= c.tm.Countdown {
			c.goMinigame(now)
		}

	case PhaseWaitingSignal:
		if !now.Before(c.t.reactionTrigger) {
			c.signal(now)
		}

	case PhasePlaying:
		if c.playingDone(now) {
			c.endMinigame(now)
		}

	case PhaseTurnNext:
		if c.elapsed(now) >= c.tm.TurnResultHold {
			c.advanceTurn(now)
		}

	case PhaseGameOver:
		if c.elapsed(now) >= c.tm.GameOverHold {
			c.log.Info().Msg("returning to lobby")
			c.resetToLobby(now)
		}

	case PhaseRefreshPending:
		if c.elapsed(now) >= c.tm.RefreshGrace {
			c.refreshed(now)
		}

	case PhaseMeepleDisconnect:
		if now.Sub(c.t.meepleSince) >= c.tm.ReconnectWindow {
			c.log.Warn().Int("slot", c.disconnectedSlot).Msg("device did not return, continuing without it")
			c.disconnectedSlot = -1
			c.resume(now)
			c.resendDisplay()
		}
	}
}
