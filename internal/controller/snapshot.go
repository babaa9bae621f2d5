package controller

import (
	"encoding/json"

	"github.com/robalobadob/meeples-gambit/internal/devices"
	"github.com/robalobadob/meeples-gambit/internal/game"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
)

// PlayerView is the read-only view of one player.
type PlayerView struct {
	Slot      int     `json:"slot"`
	Label     string  `json:"label"`
	HP        int     `json:"hp"`
	Pos       int     `json:"pos"`
	MiniScore float64 `json:"miniScore"`
	Sensor    string  `json:"sensor"`
	Move      string  `json:"move"`
}

// Snapshot is a point-in-time view of the session for the status API.
type Snapshot struct {
	Phase     Phase             `json:"phase"`
	LinkDown  bool              `json:"linkDown"`
	MatchID   string            `json:"matchId,omitempty"`
	GameState string            `json:"gameState,omitempty"`
	BoardSize int               `json:"boardSize,omitempty"`
	Players   []PlayerView      `json:"players"`
	TurnOrder []int             `json:"turnOrder,omitempty"`
	Current   *int              `json:"current,omitempty"`
	Winner    *int              `json:"winner,omitempty"`
	Rounds    int               `json:"rounds"`
	Minigame  string            `json:"minigame,omitempty"`
	Devices   []devices.Device  `json:"devices"`
	Connected int               `json:"connected"`
	Display   *protocol.Display `json:"display,omitempty"`
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Phase:     c.t.phase,
		LinkDown:  c.linkDown,
		Players:   []PlayerView{},
		Devices:   c.reg.Devices(),
		Connected: c.reg.ConnectedCount(),
	}
	if last := c.bus.LastDisplay(); len(last) > 0 {
		var d protocol.Display
		if json.Unmarshal(last, &d) == nil {
			s.Display = &d
		}
	}
	g := c.game
	if g == nil {
		return s
	}
	s.MatchID = c.matchID
	s.GameState = string(g.State)
	s.BoardSize = g.BoardSize()
	s.TurnOrder = append([]int(nil), g.TurnOrder...)
	s.Rounds = g.Rounds
	if g.Winner != nil {
		w := *g.Winner
		s.Winner = &w
	}
	if p := g.CurrentPlayer(); p != nil {
		id := p.ID
		s.Current = &id
	}
	if g.Minigame != game.MinigameNone {
		s.Minigame = g.Minigame.String()
	}
	for _, p := range g.Players {
		s.Players = append(s.Players, PlayerView{
			Slot:      p.ID,
			Label:     p.Label(),
			HP:        p.HP,
			Pos:       p.Pos,
			MiniScore: p.MiniScore,
			Sensor:    string(p.Sensor),
			Move:      p.Move.String(),
		})
	}
	return s
}
