// internal/game/engine.go
//
// Rules engine for a single board game session.
// Responsibilities:
//   - Create games for a fixed roster of player slots.
//   - Order turns from initiative rolls.
//   - Move the current player across the board and apply tile effects.
//   - Cycle turns and signal round completion (which triggers a minigame).
//   - Score minigame presses and resolve penalties.
//
// Death/respawn rule (movement and minigame penalties alike):
//   hp ≤ 0 → step back one tile (never below 0) and reset hp to StartHP.

package game

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robalobadob/meeples-gambit/internal/board"
)

var (
	ErrPlayerCount  = errors.New("player count out of range")
	ErrNoTurnOrder  = errors.New("turn order not set")
	ErrGameOver     = errors.New("game finished")
	ErrUnknownSlot  = errors.New("unknown player slot")
	ErrWrongState   = errors.New("operation not allowed in current state")
	ErrRollsMissing = errors.New("initiative rolls incomplete")
)

// New constructs a game for n players on the given board.
// A nil board uses the stock layout.
func New(n int, b Board) (*Game, error) {
	if n < 1 || n > MaxPlayers {
		return nil, fmt.Errorf("%w: %d", ErrPlayerCount, n)
	}
	if b == nil {
		b = board.Default()
	}
	g := &Game{
		Players: make([]*Player, n),
		State:   StateInitiative,
		board:   b,
	}
	for i := range g.Players {
		g.Players[i] = &Player{ID: i, HP: StartHP, Sensor: SensorUnknown}
	}
	return g, nil
}

// BoardSize is the goal position.
func (g *Game) BoardSize() int { return g.board.Size() }

// Player returns the player in slot, or nil.
func (g *Game) Player(slot int) *Player {
	if slot < 0 || slot >= len(g.Players) {
		return nil
	}
	return g.Players[slot]
}

// SetTurnOrder orders players by roll value (highest first).
// Equal rolls go to whoever rolled first.
func (g *Game) SetTurnOrder(rolls []InitiativeRoll) error {
	if len(rolls) != len(g.Players) {
		return fmt.Errorf("%w: %d of %d", ErrRollsMissing, len(rolls), len(g.Players))
	}
	sorted := append([]InitiativeRoll(nil), rolls...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		return sorted[i].At.Before(sorted[j].At)
	})
	order := make([]int, len(sorted))
	for i, r := range sorted {
		if g.Player(r.Player) == nil {
			return fmt.Errorf("%w: %d", ErrUnknownSlot, r.Player)
		}
		order[i] = r.Player
	}
	g.TurnOrder = order
	g.CurrentIndex = 0
	g.State = StateTurn
	return nil
}

// CurrentPlayer returns the player whose turn it is, or nil before initiative.
func (g *Game) CurrentPlayer() *Player {
	if len(g.TurnOrder) == 0 {
		return nil
	}
	return g.Players[g.TurnOrder[g.CurrentIndex]]
}

// MoveOutcome describes a single move.
type MoveOutcome struct {
	Player int
	From   int
	To     int // position after clamping, before a respawn step back
	Final  int // position after the move resolved
	Tile   board.Category
	Delta  int
	Died   bool
	Won    bool
}

// String is the console/log description of the move.
func (o MoveOutcome) String() string {
	if o.Won {
		return fmt.Sprintf("%s WINS!", Label(o.Player))
	}
	msg := fmt.Sprintf("%s to tile %d (%s).", Label(o.Player), o.To, o.Tile)
	if o.Died {
		msg += " DIED! Respawn."
	}
	return msg
}

// MovePlayer advances the current player by steps.
//
// Reaching the goal ends the game without a tile effect. Otherwise the tile's
// health delta is applied, followed by the death/respawn rule.
func (g *Game) MovePlayer(steps int) (MoveOutcome, error) {
	if g.State == StateGameOver {
		return MoveOutcome{}, ErrGameOver
	}
	p := g.CurrentPlayer()
	if p == nil {
		return MoveOutcome{}, ErrNoTurnOrder
	}
	if steps < 0 {
		steps = 0
	}
	out := MoveOutcome{Player: p.ID, From: p.Pos}
	p.Pos = min(p.Pos+steps, g.board.Size())
	out.To = p.Pos
	if p.Pos == g.board.Size() {
		id := p.ID
		g.Winner = &id
		g.State = StateGameOver
		out.Won, out.Tile, out.Final = true, board.Goal, p.Pos
		return out, nil
	}
	out.Tile, out.Delta = g.board.Effect(p.Pos)
	p.HP += out.Delta
	out.Died = respawn(p)
	out.Final = p.Pos
	return out, nil
}

// NextTurn advances to the next player in turn order.
// It returns true when the round wrapped; the game is then waiting for a minigame.
func (g *Game) NextTurn() bool {
	for _, p := range g.Players {
		p.Move = MoveAbsent
	}
	g.CurrentIndex++
	if g.CurrentIndex >= len(g.TurnOrder) {
		g.CurrentIndex = 0
		g.Rounds++
		g.State = StateMinigamePre
		return true
	}
	return false
}

// StartMinigame announces the next minigame. target is only used by MinigameTime.
func (g *Game) StartMinigame(kind Minigame, target float64) {
	g.Minigame = kind
	g.MinigameTarget = 0
	if kind == MinigameTime {
		g.MinigameTarget = target
	}
	for _, p := range g.Players {
		p.MiniScore, p.MiniDone = 0, false
	}
	g.State = StateMinigamePre
}

// BeginMinigameRun opens the minigame for input.
func (g *Game) BeginMinigameRun() error {
	if g.State != StateMinigamePre {
		return fmt.Errorf("%w: %s", ErrWrongState, g.State)
	}
	g.State = StateMinigameRun
	return nil
}

// RecordPress scores a minigame press for slot.
// elapsed is measured from the reaction signal (REACTION) or from GO (TIME);
// early marks a press before the reaction signal.
func (g *Game) RecordPress(slot int, elapsed time.Duration, early bool) error {
	if g.State != StateMinigameRun {
		return fmt.Errorf("%w: %s", ErrWrongState, g.State)
	}
	p := g.Player(slot)
	if p == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}
	g.Minigame.rules().press(p, elapsed, early, g.MinigameTarget)
	return nil
}

// AllDone reports whether every player has a final score. Always false for MASH.
func (g *Game) AllDone() bool {
	if g.Minigame == MinigameMash || g.Minigame == MinigameNone {
		return false
	}
	for _, p := range g.Players {
		if !p.MiniDone {
			return false
		}
	}
	return true
}

// Standings ranks players for the running minigame, best first.
func (g *Game) Standings() []*Player {
	ranked := append([]*Player(nil), g.Players...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return g.Minigame.beats(ranked[i].MiniScore, ranked[j].MiniScore)
	})
	return ranked
}

// ApplyMinigamePenalties ranks the minigame, applies penalties (2nd −1 hp,
// 3rd −2 hp), respawns dead players and returns to turns.
//
// The returned log starts with the winner, then the runner-up (if any),
// then one line per death.
func (g *Game) ApplyMinigamePenalties() []string {
	ranked := g.Standings()
	logs := []string{fmt.Sprintf("Winner: %s", ranked[0].Label())}
	if len(ranked) > 1 {
		ranked[1].HP--
		logs = append(logs, fmt.Sprintf("2nd: %s -1hp", ranked[1].Label()))
	}
	if len(ranked) > 2 {
		ranked[2].HP -= 2
	}
	for _, p := range g.Players {
		if respawn(p) {
			logs = append(logs, fmt.Sprintf("%s died, respawn", p.Label()))
		}
		p.MiniScore, p.MiniDone = 0, false
	}
	g.State = StateTurn
	return logs
}

// respawn applies the death rule and reports whether the player died.
func respawn(p *Player) bool {
	if p.HP > 0 {
		return false
	}
	p.Pos = max(0, p.Pos-1)
	p.HP = StartHP
	return true
}
