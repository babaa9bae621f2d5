package controller

import (
	"time"

	"github.com/robalobadob/meeples-gambit/internal/game"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
)

// startMinigame picks a random minigame and announces it.
func (c *Controller) startMinigame(now time.Time) {
	kind := game.Minigames[c.rnd.IntN(len(game.Minigames))]
	var target float64
	if kind == game.MinigameTime {
		span := c.tm.TimeTargetMax - c.tm.TimeTargetMin + 1
		target = float64(c.tm.TimeTargetMin + c.rnd.IntN(span))
	}
	c.game.StartMinigame(kind, target)
	c.t.reactionTrigger = time.Time{}
	c.t.timeLimit = 0
	c.allLEDs(protocol.LEDOff)
	c.show(protocol.NewDisplay("Next: "+kind.Title(), kind.Hint(target)))
	c.setPhase(PhaseAnnounce, now)
	c.log.Info().Str("minigame", kind.String()).Float64("target", target).Msg("minigame announced")
}

// beginCountdown runs after the announcement.
func (c *Controller) beginCountdown(now time.Time) {
	c.sound(protocol.SoundMinigameStart)
	c.show(protocol.NewDisplay(c.game.Minigame.Title(), "Get ready..."))
	c.setPhase(PhaseCountdown, now)
}

// goMinigame opens the minigame for presses.
func (c *Controller) goMinigame(now time.Time) {
	if err := c.game.BeginMinigameRun(); err != nil {
		c.log.Error().Err(err).Msg("begin minigame")
		c.setPhase(PhaseIdle, now)
		return
	}
	buttons := buttonsFor(len(c.game.Players))
	switch c.game.Minigame {
	case game.MinigameReaction:
		spread := c.tm.SignalMaxDelay - c.tm.SignalMinDelay
		delay := c.tm.SignalMinDelay + time.Duration(c.rnd.Float64()*float64(spread))
		c.t.reactionTrigger = now.Add(delay)
		c.show(protocol.NewDisplay("Wait for it...", "Don't press!", buttons...))
		c.setPhase(PhaseWaitingSignal, now)
		return
	case game.MinigameTime:
		c.t.reactionTrigger = now
		c.t.timeLimit = time.Duration(c.game.MinigameTarget*float64(time.Second)) + c.tm.TimeSlack
		c.show(protocol.NewDisplay("GO! Count...", c.game.Minigame.Hint(c.game.MinigameTarget), buttons...))
	default:
		c.t.timeLimit = c.tm.MashLimit
		c.show(protocol.NewDisplay("GO!", "Mash your button", buttons...))
	}
	c.sound(protocol.SoundGo)
	c.setPhase(PhasePlaying, now)
}

// signal fires the reaction cue.
func (c *Controller) signal(now time.Time) {
	c.sound(protocol.SoundSignal)
	c.show(protocol.NewDisplay("PRESS NOW!", "", buttonsFor(len(c.game.Players))...))
	c.t.timeLimit = c.tm.ReactionLimit
	c.setPhase(PhasePlaying, now)
}

// minigamePress scores a press during WAITING_SIGNAL or PLAYING.
func (c *Controller) minigamePress(slot int, now time.Time) error {
	p := c.game.Player(slot)
	if p == nil {
		return ErrBadSlot
	}
	early := c.t.phase == PhaseWaitingSignal
	if early && !p.MiniDone {
		c.sound(protocol.SoundFalseStart)
	}
	var elapsed time.Duration
	if !early && !c.t.reactionTrigger.IsZero() {
		elapsed = now.Sub(c.t.reactionTrigger)
	}
	return c.game.RecordPress(slot, elapsed, early)
}

// playingDone reports whether the PLAYING phase should close.
func (c *Controller) playingDone(now time.Time) bool {
	return c.elapsed(now) >= c.t.timeLimit || c.game.AllDone()
}

// endMinigame ranks the players, applies penalties and shows the results.
func (c *Controller) endMinigame(now time.Time) {
	c.sound(protocol.SoundEnd)
	logs := c.game.ApplyMinigamePenalties()
	c.log.Info().Str("minigame", c.game.Minigame.String()).Strs("results", logs).Msg("minigame finished")
	for i := 0; i < len(logs); i += 2 {
		line2 := ""
		if i+1 < len(logs) {
			line2 = logs[i+1]
		}
		c.notice(protocol.NewDisplay(logs[i], line2))
	}
	c.t.reactionTrigger = time.Time{}
	c.t.timeLimit = 0
	c.t.ignoreInputsUntil = now.Add(c.tm.ResultHold)
	c.prompted = false
	c.setPhase(PhaseIdle, now)
}
