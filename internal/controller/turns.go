package controller

import (
	"strconv"
	"time"

	"github.com/robalobadob/meeples-gambit/internal/board"
	"github.com/robalobadob/meeples-gambit/internal/game"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
)

func (c *Controller) turnDisplay() protocol.Display {
	p := c.game.CurrentPlayer()
	return protocol.NewDisplay(
		p.Label()+"'s turn",
		"HP "+strconv.Itoa(p.HP)+" Tile "+strconv.Itoa(p.Pos),
		p.ID+1,
	)
}

// promptTurn shows the current player's prompt and lights their LED.
func (c *Controller) promptTurn() {
	p := c.game.CurrentPlayer()
	c.show(c.turnDisplay())
	for _, q := range c.game.Players {
		if q.ID == p.ID {
			c.led(q.ID, protocol.LEDOn)
		} else {
			c.led(q.ID, protocol.LEDOff)
		}
	}
	c.prompted = true
}

// rollTurn rolls the die for the current player and waits for the piece to move.
func (c *Controller) rollTurn(slot int, now time.Time) error {
	p := c.game.CurrentPlayer()
	if c.game.Player(slot) == nil {
		return ErrBadSlot
	}
	if slot != p.ID {
		return ErrNotYourTurn
	}
	c.pendingSteps = 1 + c.rnd.IntN(6)
	c.t.ignoreInputsUntil = now.Add(c.tm.Debounce)
	p.Move = game.MovePending
	c.sound(protocol.SoundRoll)
	c.log.Info().Int("slot", slot).Int("steps", c.pendingSteps).Msg("turn roll")

	target := min(p.Pos+c.pendingSteps, c.game.BoardSize())
	line1 := p.Label() + " rolled " + strconv.Itoa(c.pendingSteps)
	if c.reg.Online(slot) {
		c.led(slot, protocol.LEDBlink)
		c.show(protocol.NewDisplay(line1, "Move to tile "+strconv.Itoa(target)))
		c.setPhase(PhaseWaitForMove, now)
		return nil
	}
	c.show(protocol.NewDisplay(line1, "Tile "+strconv.Itoa(target)+"? Press", slot+1))
	c.setPhase(PhaseWaitConfirm, now)
	return nil
}

// onSensor tracks piece lifts and placements.
func (c *Controller) onSensor(slot int, reading protocol.Reading, now time.Time) error {
	if c.game == nil {
		return ErrNoGame
	}
	p := c.game.Player(slot)
	if p == nil {
		return ErrBadSlot
	}
	prev := p.Sensor
	p.Sensor = game.SensorState(reading)
	if c.t.phase != PhaseWaitForMove || p != c.game.CurrentPlayer() {
		return nil
	}
	switch reading {
	case protocol.Clean:
		p.Move = game.MoveLifted
	case protocol.Detected:
		if prev == game.SensorClean || p.LiftedPiece() {
			c.led(slot, protocol.LEDOn)
			c.show(protocol.NewDisplay("Piece placed", "Press to confirm", slot+1))
			c.setPhase(PhaseWaitConfirm, now)
		}
	}
	return nil
}

// confirmMove applies the pending roll once the current player presses.
func (c *Controller) confirmMove(slot int, now time.Time) error {
	p := c.game.CurrentPlayer()
	if c.game.Player(slot) == nil {
		return ErrBadSlot
	}
	if slot != p.ID {
		return ErrNotYourTurn
	}
	p.Move = game.MoveVerified
	out, err := c.game.MovePlayer(c.pendingSteps)
	if err != nil {
		return err
	}
	c.pendingSteps = 0
	c.t.ignoreInputsUntil = now.Add(c.tm.Debounce)
	c.log.Info().Int("slot", slot).Int("from", out.From).Int("to", out.Final).
		Str("tile", string(out.Tile)).Bool("died", out.Died).Msg(out.String())

	if out.Won {
		c.finishGame(now)
		return nil
	}
	switch {
	case out.Delta < 0:
		c.sound(protocol.SoundDamage)
	case out.Delta > 0:
		c.sound(protocol.SoundHeal)
	}
	c.show(moveDisplay(out, p.HP))
	c.led(slot, protocol.LEDOff)
	c.setPhase(PhaseTurnNext, now)
	return nil
}

func moveDisplay(out game.MoveOutcome, hp int) protocol.Display {
	line1 := game.Label(out.Player) + " tile " + strconv.Itoa(out.To)
	var line2 string
	switch {
	case out.Died:
		line2 = "DIED! Respawn " + strconv.Itoa(out.Final)
	case out.Tile == board.Normal:
		line2 = "HP " + strconv.Itoa(hp)
	default:
		line2 = string(out.Tile) + " HP " + strconv.Itoa(hp)
	}
	return protocol.NewDisplay(line1, line2)
}

// advanceTurn moves to the next player, or into a minigame when the round wrapped.
func (c *Controller) advanceTurn(now time.Time) {
	c.prompted = false
	if c.game.NextTurn() {
		c.startMinigame(now)
		return
	}
	c.setPhase(PhaseIdle, now)
}
