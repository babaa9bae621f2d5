package controller

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/meeples-gambit/internal/game"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
	"github.com/robalobadob/meeples-gambit/internal/store"
)

func lobbyDisplay() protocol.Display {
	return protocol.NewDisplay("Meeple's Gambit", "Players? 2 or 3", 2, 3)
}

// enterLobby drops any game and shows the player-count prompt.
func (c *Controller) enterLobby(now time.Time) {
	c.game = nil
	c.rolls = nil
	c.pendingSteps = 0
	c.disconnectedSlot = -1
	c.prompted = false
	c.t = timers{}
	c.reg.SetCapacity(game.MaxPlayers)
	c.setPhase(PhaseLobby, now)
	c.status(protocol.StatusLobby)
	c.show(lobbyDisplay())
}

// chooseLobby starts a game for 2 or 3 players.
func (c *Controller) chooseLobby(button int, now time.Time) error {
	if button != 2 && button != 3 {
		return ErrLobbyChoice
	}
	g, err := game.New(button, c.board)
	if err != nil {
		return err
	}
	c.game = g
	c.rolls = nil
	c.matchID = uuid.NewString()
	c.matchStart = now
	for _, id := range c.reg.SetCapacity(button) {
		c.publish(c.topics.DeviceConfig(id), nil, retained)
		c.log.Info().Str("device", id).Int("players", button).Msg("device released, slot unused")
	}
	c.t.ignoreInputsUntil = time.Time{}
	c.setPhase(PhaseIdle, now)
	c.log.Info().Str("match", c.matchID).Int("players", button).Msg("game started")

	c.status(protocol.StatusPlaying)
	c.show(protocol.NewDisplay("Initiative!", "Press to roll", buttonsFor(button)...))
	return nil
}

// rollInitiative rolls the die for slot. The last roll sets the turn order.
func (c *Controller) rollInitiative(slot int, now time.Time) error {
	if c.game.Player(slot) == nil {
		return ErrBadSlot
	}
	for _, r := range c.rolls {
		if r.Player == slot {
			return ErrAlreadyRolled
		}
	}
	roll := game.InitiativeRoll{Player: slot, Value: 1 + c.rnd.IntN(6), At: now}
	c.rolls = append(c.rolls, roll)
	c.log.Info().Int("slot", slot).Int("value", roll.Value).Msg("initiative roll")

	c.sound(protocol.SoundRoll)
	if len(c.rolls) < len(c.game.Players) {
		c.show(protocol.NewDisplay(game.Label(slot)+" rolled "+strconv.Itoa(roll.Value), "Others roll", c.unrolled()...))
		return nil
	}
	if err := c.game.SetTurnOrder(c.rolls); err != nil {
		return err
	}
	first := c.game.CurrentPlayer()
	c.show(protocol.NewDisplay(game.Label(slot)+" rolled "+strconv.Itoa(roll.Value), first.Label()+" goes first"))
	c.setPhase(PhaseInitiativeCooldown, now)
	return nil
}

func (c *Controller) unrolled() []int {
	var out []int
	for _, p := range c.game.Players {
		rolled := false
		for _, r := range c.rolls {
			rolled = rolled || r.Player == p.ID
		}
		if !rolled {
			out = append(out, p.ID+1)
		}
	}
	return out
}

func buttonsFor(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// finishGame shows the winner and holds GAME_OVER before returning to the lobby.
func (c *Controller) finishGame(now time.Time) {
	winner := *c.game.Winner
	c.setPhase(PhaseGameOver, now)
	c.sound(protocol.SoundWin)
	c.show(protocol.NewDisplay("GAME OVER", game.Label(winner)+" WINS!"))
	c.allLEDs(protocol.LEDOff)
	c.record(store.OutcomeWon, "", now)
	c.log.Info().Str("match", c.matchID).Int("winner", winner).Int("rounds", c.game.Rounds).Msg("game over")
}

// resetToLobby clears assignments and tells the nodes to re-register.
func (c *Controller) resetToLobby(now time.Time) {
	c.reg.Reset()
	c.status(protocol.StatusReset)
	c.enterLobby(now)
}

// abortGame records the running match as aborted and resets to the lobby.
func (c *Controller) abortGame(now time.Time, reason string) {
	if c.game != nil && c.t.phase != PhaseGameOver {
		c.record(store.OutcomeAborted, reason, now)
		c.log.Warn().Str("match", c.matchID).Str("reason", reason).Msg("game aborted")
		c.allLEDs(protocol.LEDOff)
	}
	c.resetToLobby(now)
}

func (c *Controller) record(outcome store.Outcome, reason string, now time.Time) {
	if c.journal == nil || c.game == nil {
		return
	}
	m := store.Match{
		ID:         c.matchID,
		Players:    len(c.game.Players),
		Winner:     c.game.Winner,
		Rounds:     c.game.Rounds,
		Outcome:    outcome,
		Reason:     reason,
		StartedAt:  c.matchStart,
		FinishedAt: now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.journal.RecordMatch(ctx, m); err != nil {
		c.log.Error().Err(err).Str("match", m.ID).Msg("record match")
	}
}
