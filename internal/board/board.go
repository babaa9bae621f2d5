// internal/board/board.go
//
// Static tile layout for the physical board.
//
// Responsibilities:
//   - Map a board position to a tile category and a health delta.
//   - Load the layout from a file (BOARD_FILE) or fall back to the embedded default.
//
// Layout file format (one directive per line, '#' starts a comment):
//   size 16          → goal position (board length)
//   2 dmg_1          → tile at position 2 is a "dmg_1" tile
//
// Constraints:
//   • Positions must be in 1..size-1 (0 is the start, size is the goal).
//   • Unknown categories are rejected.

package board

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

//go:embed default_board.txt
var embeddedLayout string

// Category names the kind of tile a player lands on.
type Category string

const (
	Normal Category = "normal"
	Dmg1   Category = "dmg_1"
	Dmg2   Category = "dmg_2"
	Heal1  Category = "heal_1"
	Heal2  Category = "heal_2"
	Goal   Category = "goal"
)

// DefaultSize is the goal position of the stock board.
const DefaultSize = 16

var deltas = map[Category]int{
	Normal: 0,
	Dmg1:   -1,
	Dmg2:   -2,
	Heal1:  1,
	Heal2:  2,
	Goal:   0,
}

// Delta returns the health change applied when landing on c.
func (c Category) Delta() int { return deltas[c] }

// Layout is an immutable tile table.
type Layout struct {
	size  int
	tiles map[int]Category
}

// Size is the goal position. Reaching it wins the game.
func (l *Layout) Size() int { return l.size }

// Effect returns the tile category and health delta at pos.
// Positions at or beyond the goal report Goal with no delta.
func (l *Layout) Effect(pos int) (Category, int) {
	if pos >= l.size {
		return Goal, 0
	}
	c, ok := l.tiles[pos]
	if !ok {
		return Normal, 0
	}
	return c, c.Delta()
}

// Default returns the embedded stock layout.
func Default() *Layout {
	l, err := Parse(strings.NewReader(embeddedLayout))
	if err != nil {
		// The embedded file is part of the build.
		panic(fmt.Sprintf("board: embedded layout: %v", err))
	}
	return l
}

// Load reads a layout file. An empty path returns the embedded default.
func Load(path string) (*Layout, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open board %s: %w", path, err)
	}
	defer f.Close()
	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse board %s: %w", path, err)
	}
	return l, nil
}

// Parse reads the layout format described in the file header.
func Parse(r io.Reader) (*Layout, error) {
	l := &Layout{size: DefaultSize, tiles: make(map[int]Category)}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		fields := strings.Fields(s)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want 2 fields, got %d", line, len(fields))
		}
		if fields[0] == "size" {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 2 {
				return nil, fmt.Errorf("line %d: invalid size %q", line, fields[1])
			}
			l.size = n
			continue
		}
		pos, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid position %q", line, fields[0])
		}
		c := Category(strings.ToLower(fields[1]))
		if _, ok := deltas[c]; !ok || c == Goal {
			return nil, fmt.Errorf("line %d: unknown tile %q", line, fields[1])
		}
		l.tiles[pos] = c
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for pos := range l.tiles {
		if pos <= 0 || pos >= l.size {
			return nil, errors.New("tile position outside 1..size-1")
		}
	}
	return l, nil
}
