// internal/game/types.go
//
// Core type definitions for the board game state machine.
// Defines:
//   - State: logical game state (initiative, turns, minigames, game over).
//   - SensorState / MoveConfirm: per-player piece tracking.
//   - Player: per-slot health, position and minigame score.
//   - Game: the whole session, owned by the controller.

package game

import (
	"fmt"
	"time"

	"github.com/robalobadob/meeples-gambit/internal/board"
)

// State is the logical game state. It is independent of the controller's timing phases.
type State string

const (
	StateInitiative  State = "INITIATIVE"
	StateTurn        State = "TURN"
	StateMinigamePre State = "MINIGAME_PRE"
	StateMinigameRun State = "MINIGAME_RUN"
	StateGameOver    State = "GAME_OVER"
)

// SensorState is the last reading of a player's piece sensor.
type SensorState string

const (
	SensorUnknown  SensorState = "UNKNOWN"
	SensorClean    SensorState = "CLEAN"
	SensorDetected SensorState = "DETECTED"
)

// MoveConfirm tracks a physical move during a turn.
// MoveAbsent means no move confirmation is in progress.
type MoveConfirm int

const (
	MoveAbsent   MoveConfirm = iota
	MovePending              // dice rolled, piece not lifted yet
	MoveLifted               // piece left its tile
	MoveVerified             // move confirmed on the console
)

func (m MoveConfirm) String() string {
	switch m {
	case MovePending:
		return "pending"
	case MoveLifted:
		return "lifted"
	case MoveVerified:
		return "verified"
	default:
		return "absent"
	}
}

const (
	// StartHP is the health every player starts with and respawns with.
	StartHP = 10
	// MaxPlayers is the size of the slot roster.
	MaxPlayers = 3
)

// Player holds the state of a single slot.
type Player struct {
	ID        int         // Stable slot index.
	HP        int         // Health; death at ≤ 0.
	Pos       int         // 0..board size.
	MiniScore float64     // Score in the running minigame.
	MiniDone  bool        // True once the player's minigame action is final.
	Sensor    SensorState // Last piece sensor reading.
	Move      MoveConfirm // Move-confirmation sub-state for the running turn.
}

// LiftedPiece reports whether the piece was lifted during the running move.
func (p *Player) LiftedPiece() bool { return p.Move == MoveLifted }

// MoveVerified reports whether the running move was confirmed.
func (p *Player) MoveVerified() bool { return p.Move == MoveVerified }

// Label is the player's name on the console (P1..P3, matching button numbers).
func (p *Player) Label() string { return Label(p.ID) }

// Label formats a slot as shown on the console.
func Label(slot int) string { return fmt.Sprintf("P%d", slot+1) }

// InitiativeRoll is a single initiative die roll.
type InitiativeRoll struct {
	Player int
	Value  int // 1..6
	At     time.Time
}

// Board is the tile table the game moves pieces over.
type Board interface {
	Size() int
	Effect(pos int) (board.Category, int)
}

// Game is the whole logical session state.
type Game struct {
	Players        []*Player
	TurnOrder      []int    // permutation of player ids, empty until initiative is done
	CurrentIndex   int      // index into TurnOrder
	State          State
	Winner         *int     // set when a player reaches the goal
	Minigame       Minigame // running or last announced minigame
	MinigameTarget float64  // target seconds, TIME only
	Rounds         int      // completed turn rounds

	board Board
}
