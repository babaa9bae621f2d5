// internal/game/minigame.go
//
// Minigame kinds and their per-kind rules.
//
// Each kind has exactly one rules entry: ranking direction, whether a zero
// score means "did not finish", how a press is scored, and console text.

package game

import (
	"math"
	"strconv"
	"time"
)

// Minigame is the closed set of minigame kinds.
type Minigame int

const (
	MinigameNone Minigame = iota
	MinigameMash
	MinigameReaction
	MinigameTime
)

// Minigames lists the playable kinds, in selection order.
var Minigames = []Minigame{MinigameMash, MinigameReaction, MinigameTime}

const (
	// FalseStartScore is recorded when a player presses before the reaction signal.
	FalseStartScore = 999.0
	// minMeasured keeps measured scores away from the DNF sentinel.
	minMeasured = 0.001
)

type minigameRules struct {
	name       string
	title      string
	higherWins bool
	zeroIsDNF  bool
	hint       func(target float64) string
	press      func(p *Player, elapsed time.Duration, early bool, target float64)
}

var rules = map[Minigame]minigameRules{
	MinigameNone: {
		name:  "NONE",
		title: "",
		hint:  func(float64) string { return "" },
		press: func(*Player, time.Duration, bool, float64) {},
	},
	MinigameMash: {
		name:       "MASH",
		title:      "MASH!",
		higherWins: true,
		hint:       func(float64) string { return "Press fast!" },
		press: func(p *Player, _ time.Duration, _ bool, _ float64) {
			p.MiniScore++
		},
	},
	MinigameReaction: {
		name:      "REACTION",
		title:     "REACTION",
		zeroIsDNF: true,
		hint:      func(float64) string { return "Wait for beep" },
		press: func(p *Player, elapsed time.Duration, early bool, _ float64) {
			if p.MiniDone {
				return
			}
			if early {
				p.MiniScore = FalseStartScore
			} else {
				p.MiniScore = measured(elapsed.Seconds())
			}
			p.MiniDone = true
		},
	},
	MinigameTime: {
		name:      "TIME",
		title:     "TIME",
		zeroIsDNF: true,
		hint: func(target float64) string {
			return "Aim: " + formatSeconds(target)
		},
		press: func(p *Player, elapsed time.Duration, _ bool, target float64) {
			if p.MiniDone {
				return
			}
			p.MiniScore = measured(math.Abs(elapsed.Seconds() - target))
			p.MiniDone = true
		},
	},
}

func (m Minigame) rules() minigameRules {
	if r, ok := rules[m]; ok {
		return r
	}
	return rules[MinigameNone]
}

func (m Minigame) String() string { return m.rules().name }

// Title is the console headline for the minigame.
func (m Minigame) Title() string { return m.rules().title }

// Hint is the second console line while announcing the minigame.
func (m Minigame) Hint(target float64) string { return m.rules().hint(target) }

// HigherWins reports the ranking direction.
func (m Minigame) HigherWins() bool { return m.rules().higherWins }

// ParseMinigame maps a name back to its kind.
func ParseMinigame(s string) (Minigame, bool) {
	for k, r := range rules {
		if r.name == s {
			return k, true
		}
	}
	return MinigameNone, false
}

// beats reports whether score a ranks strictly ahead of score b.
func (m Minigame) beats(a, b float64) bool {
	r := m.rules()
	if r.higherWins {
		return a > b
	}
	if r.zeroIsDNF {
		aDNF, bDNF := a == 0, b == 0
		if aDNF || bDNF {
			return !aDNF && bDNF
		}
	}
	return a < b
}

func measured(v float64) float64 {
	if v < minMeasured {
		return minMeasured
	}
	return v
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "s"
}
