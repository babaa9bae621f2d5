package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/meeples-gambit/internal/bus"
	"github.com/robalobadob/meeples-gambit/internal/config"
	"github.com/robalobadob/meeples-gambit/internal/game"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
	"github.com/robalobadob/meeples-gambit/internal/store"
)

// scripted replays fixed random values; it returns 0 once exhausted.
type scripted struct {
	ints   []int
	floats []float64
}

func (s *scripted) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func (s *scripted) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

type harness struct {
	t       *testing.T
	now     time.Time
	topics  protocol.Topics
	bus     *bus.Memory
	rnd     *scripted
	journal store.Journal
	c       *Controller
}

func newHarness(t *testing.T, minConnected int, ints []int, floats ...float64) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		now:     time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC),
		topics:  protocol.NewTopics(""),
		rnd:     &scripted{ints: ints, floats: floats},
		journal: store.NewMemoryJournal(),
	}
	h.bus = bus.NewMemory(h.topics.DisplayAck(), 20*time.Millisecond, true)
	tm := config.DefaultTiming()
	tm.MinConnected = minConnected
	h.c = New(Deps{
		Bus:     h.bus,
		Topics:  h.topics,
		Journal: h.journal,
		Rand:    h.rnd,
		Clock:   func() time.Time { return h.now },
		Timing:  tm,
		Log:     zerolog.Nop(),
	})
	h.c.Start()
	return h
}

func (h *harness) send(topic, payload string) error {
	return h.c.HandleMessage(topic, []byte(payload), h.now)
}

func (h *harness) press(button int) error {
	return h.send(h.topics.Button(), fmt.Sprintf(`{"button":%d}`, button))
}

func (h *harness) mustPress(button int) {
	h.t.Helper()
	if err := h.press(button); err != nil {
		h.t.Fatalf("press %d: %v", button, err)
	}
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.c.Tick(h.now)
}

func (h *harness) expectPhase(want Phase) {
	h.t.Helper()
	if h.c.t.phase != want {
		h.t.Fatalf("expected phase %s, got %s", want, h.c.t.phase)
	}
}

func (h *harness) lastDisplay() protocol.Display {
	h.t.Helper()
	msgs := h.bus.On(h.topics.Display())
	if len(msgs) == 0 {
		h.t.Fatal("no display published")
	}
	var d protocol.Display
	if err := json.Unmarshal(msgs[len(msgs)-1].Payload, &d); err != nil {
		h.t.Fatal(err)
	}
	return d
}

func (h *harness) sounds() []string {
	var out []string
	for _, m := range h.bus.On(h.topics.Sound()) {
		out = append(out, string(m.Payload))
	}
	return out
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// startTwoPlayers drives a game to P2's first turn prompt. Initiative rolls
// are 3 for P1 and 5 for P2.
func startTwoPlayers(h *harness) {
	h.t.Helper()
	h.mustPress(2)
	h.mustPress(1)
	h.mustPress(2)
	h.expectPhase(PhaseInitiativeCooldown)
	h.advance(3 * time.Second)
	h.advance(100 * time.Millisecond)
	h.expectPhase(PhaseIdle)
	if got := h.lastDisplay().Line1; got != "P2's turn" {
		h.t.Fatalf("expected P2's turn prompt, got %q", got)
	}
}

func TestLobbyRejectsOtherChoices(t *testing.T) {
	h := newHarness(t, 0, nil)
	if got, _ := h.bus.Retained(h.topics.Status()); string(got) != "LOBBY" {
		t.Fatalf("expected retained LOBBY status, got %q", got)
	}
	if d := h.lastDisplay(); d.Line2 != "Players? 2 or 3" || len(d.Buttons) != 2 {
		t.Fatalf("unexpected lobby prompt %+v", d)
	}
	err := h.press(1)
	var apply *ApplyError
	if !errors.As(err, &apply) || !errors.Is(err, ErrLobbyChoice) {
		t.Fatalf("expected ApplyError wrapping ErrLobbyChoice, got %v", err)
	}
	h.expectPhase(PhaseLobby)

	h.mustPress(3)
	h.expectPhase(PhaseIdle)
	if len(h.c.game.Players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(h.c.game.Players))
	}
	if got, _ := h.bus.Retained(h.topics.Status()); string(got) != "PLAYING" {
		t.Fatalf("expected PLAYING status, got %q", got)
	}
}

func TestInitiativeSetsTurnOrder(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4})
	h.mustPress(2)
	h.mustPress(1)
	if err := h.press(1); !errors.Is(err, ErrAlreadyRolled) {
		t.Fatalf("expected ErrAlreadyRolled, got %v", err)
	}
	if err := h.press(3); !errors.Is(err, ErrBadSlot) {
		t.Fatalf("expected ErrBadSlot for button 3 in a 2-player game, got %v", err)
	}
	h.mustPress(2)
	h.expectPhase(PhaseInitiativeCooldown)
	if got := h.c.game.TurnOrder; len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("expected turn order [1 0], got %v", got)
	}
	if d := h.lastDisplay(); d.Line2 != "P2 goes first" {
		t.Fatalf("unexpected initiative result %+v", d)
	}
	h.advance(2 * time.Second)
	h.expectPhase(PhaseInitiativeCooldown)
	h.advance(time.Second)
	h.expectPhase(PhaseIdle)
}

func TestTurnWithoutSensorsAndDebounce(t *testing.T) {
	// initiative 3/5, P2 rolls 4 (heal_1 tile)
	h := newHarness(t, 0, []int{2, 4, 3})
	startTwoPlayers(h)

	err := h.press(1)
	if !errors.Is(err, ErrNotYourTurn) || !routine(err) {
		t.Fatalf("expected routine ErrNotYourTurn, got %v", err)
	}
	h.mustPress(2)
	h.expectPhase(PhaseWaitConfirm)

	// presses inside the debounce window are dropped
	h.mustPress(2)
	h.expectPhase(PhaseWaitConfirm)

	h.advance(time.Second)
	h.mustPress(2)
	h.expectPhase(PhaseTurnNext)
	p2 := h.c.game.Player(1)
	if p2.Pos != 4 || p2.HP != game.StartHP+1 {
		t.Fatalf("expected P2 on tile 4 with 11 hp, got pos %d hp %d", p2.Pos, p2.HP)
	}
	if !contains(h.sounds(), "HEAL") {
		t.Fatalf("expected HEAL sound, got %v", h.sounds())
	}

	h.advance(3 * time.Second)
	h.expectPhase(PhaseIdle)
	h.advance(100 * time.Millisecond)
	if got := h.lastDisplay(); got.Line1 != "P1's turn" || got.Buttons[0] != 1 {
		t.Fatalf("expected P1's prompt, got %+v", got)
	}
}

func TestTurnWithSensor(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4, 1})
	for _, id := range []string{"alpha", "beta"} {
		if err := h.send(h.topics.Register(), `{"deviceId":"`+id+`"}`); err != nil {
			t.Fatal(err)
		}
	}
	startTwoPlayers(h)

	h.mustPress(2)
	h.expectPhase(PhaseWaitForMove)
	leds := h.bus.On(h.topics.LED(1))
	if string(leds[len(leds)-1].Payload) != "BLINK" {
		t.Fatalf("expected BLINK on slot 1, got %s", leds[len(leds)-1].Payload)
	}

	sensor := h.topics.Sensor(1)
	if err := h.send(sensor, "DETECTED"); err != nil {
		t.Fatal(err)
	}
	h.expectPhase(PhaseWaitForMove)
	if err := h.send(sensor, "CLEAN"); err != nil {
		t.Fatal(err)
	}
	if !h.c.game.Player(1).LiftedPiece() {
		t.Fatal("expected piece lifted")
	}
	if err := h.send(sensor, "DETECTED"); err != nil {
		t.Fatal(err)
	}
	h.expectPhase(PhaseWaitConfirm)

	h.advance(time.Second)
	h.mustPress(2)
	h.expectPhase(PhaseTurnNext)
	if p := h.c.game.Player(1); p.Pos != 2 || p.HP != game.StartHP-1 {
		t.Fatalf("expected P2 on tile 2 with 9 hp, got pos %d hp %d", p.Pos, p.HP)
	}
	if !contains(h.sounds(), "DAMAGE") {
		t.Fatalf("expected DAMAGE sound, got %v", h.sounds())
	}
}

func TestReactionMinigame(t *testing.T) {
	// initiative 3/5, P2 rolls 4, P1 rolls 2, minigame index 1 (REACTION), signal after 3s
	h := newHarness(t, 0, []int{2, 4, 3, 1, 1}, 0.5)
	startTwoPlayers(h)

	h.mustPress(2)
	h.advance(time.Second)
	h.mustPress(2)
	h.advance(3 * time.Second)
	h.advance(100 * time.Millisecond)
	h.mustPress(1)
	h.advance(time.Second)
	h.mustPress(1)
	if p := h.c.game.Player(0); p.Pos != 2 || p.HP != 9 {
		t.Fatalf("expected P1 on tile 2 with 9 hp, got pos %d hp %d", p.Pos, p.HP)
	}

	h.advance(3 * time.Second)
	h.expectPhase(PhaseAnnounce)
	if h.c.game.Minigame != game.MinigameReaction {
		t.Fatalf("expected REACTION, got %s", h.c.game.Minigame)
	}
	if h.c.game.Rounds != 1 {
		t.Fatalf("expected 1 completed round, got %d", h.c.game.Rounds)
	}
	h.advance(3 * time.Second)
	h.expectPhase(PhaseCountdown)
	h.advance(3 * time.Second)
	h.expectPhase(PhaseWaitingSignal)

	h.mustPress(1) // false start
	if s := h.c.game.Player(0).MiniScore; s != game.FalseStartScore {
		t.Fatalf("expected false start score, got %v", s)
	}
	h.advance(2 * time.Second)
	h.expectPhase(PhaseWaitingSignal)
	h.advance(time.Second)
	h.expectPhase(PhasePlaying)

	h.now = h.now.Add(250 * time.Millisecond)
	h.mustPress(2)
	if s := h.c.game.Player(1).MiniScore; s != 0.25 {
		t.Fatalf("expected 0.25s reaction, got %v", s)
	}
	h.advance(100 * time.Millisecond)
	h.expectPhase(PhaseIdle)

	d := h.lastDisplay()
	if d.Line1 != "Winner: P2" || d.Line2 != "2nd: P1 -1hp" {
		t.Fatalf("unexpected result display %+v", d)
	}
	if hp := h.c.game.Player(0).HP; hp != 8 {
		t.Fatalf("expected P1 at 8 hp, got %d", hp)
	}
	for _, want := range []string{"MINIGAME_START", "FALSE_START", "SIGNAL", "END"} {
		if !contains(h.sounds(), want) {
			t.Fatalf("expected %s sound, got %v", want, h.sounds())
		}
	}

	// results stay up for the hold, then P2 is prompted again
	h.mustPress(2)
	h.expectPhase(PhaseIdle)
	h.advance(3 * time.Second)
	if got := h.lastDisplay().Line1; got != "P2's turn" {
		t.Fatalf("expected P2's prompt after results, got %q", got)
	}
}

// playFirstRound plays one turn each (P2 then P1) and stops at the minigame
// announcement. The scripted ints must continue with P2's and P1's move rolls.
func playFirstRound(h *harness) {
	h.t.Helper()
	h.mustPress(2)
	h.advance(time.Second)
	h.mustPress(2)
	h.advance(3 * time.Second)
	h.advance(100 * time.Millisecond)
	h.mustPress(1)
	h.advance(time.Second)
	h.mustPress(1)
	h.advance(3 * time.Second)
	h.expectPhase(PhaseAnnounce)
}

func TestTimeMinigame(t *testing.T) {
	// minigame index 2 (TIME), target 3+2 = 5s
	h := newHarness(t, 0, []int{2, 4, 3, 1, 2, 2})
	startTwoPlayers(h)
	playFirstRound(h)

	if h.c.game.Minigame != game.MinigameTime || h.c.game.MinigameTarget != 5 {
		t.Fatalf("expected TIME with a 5s target, got %s %v", h.c.game.Minigame, h.c.game.MinigameTarget)
	}
	if d := h.lastDisplay(); d.Line1 != "Next: TIME" || d.Line2 != "Aim: 5s" {
		t.Fatalf("unexpected announcement %+v", d)
	}
	h.advance(3 * time.Second)
	h.advance(3 * time.Second)
	h.expectPhase(PhasePlaying)
	if d := h.lastDisplay(); d.Line1 != "GO! Count..." || d.Line2 != "Aim: 5s" {
		t.Fatalf("unexpected GO display %+v", d)
	}
	if !contains(h.sounds(), "GO") {
		t.Fatalf("expected GO sound, got %v", h.sounds())
	}

	// scored from GO: 4.5s against a 5s target
	h.now = h.now.Add(4500 * time.Millisecond)
	h.mustPress(1)
	h.now = h.now.Add(time.Second)
	h.mustPress(1)
	if s := h.c.game.Player(0).MiniScore; s != 0.5 {
		t.Fatalf("expected 0.5s off target, got %v", s)
	}

	// limit is target + 3s slack; P2 never presses
	h.advance(2400 * time.Millisecond)
	h.expectPhase(PhasePlaying)
	h.advance(100 * time.Millisecond)
	h.expectPhase(PhaseIdle)
	if d := h.lastDisplay(); d.Line1 != "Winner: P1" || d.Line2 != "2nd: P2 -1hp" {
		t.Fatalf("expected P1 ahead of the DNF, got %+v", d)
	}
	if hp := h.c.game.Player(1).HP; hp != game.StartHP {
		t.Fatalf("expected P2 back at %d hp, got %d", game.StartHP, hp)
	}
}

func TestResultHoldDropsPresses(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4, 3, 1, 0})
	startTwoPlayers(h)
	playFirstRound(h)
	h.advance(3 * time.Second)
	h.advance(3 * time.Second)
	h.expectPhase(PhasePlaying)
	h.advance(10 * time.Second)
	h.expectPhase(PhaseIdle)
	before := len(h.sounds())

	if err := h.press(2); err != nil {
		t.Fatalf("press during the result hold must be dropped silently, got %v", err)
	}
	h.expectPhase(PhaseIdle)
	if n := len(h.sounds()); n != before {
		t.Fatalf("expected no sound during the hold, got %v", h.sounds()[before:])
	}

	h.advance(2900 * time.Millisecond)
	if got := h.lastDisplay().Line1; got != "Winner: P1" {
		t.Fatalf("expected results still shown, got %q", got)
	}
	h.advance(100 * time.Millisecond)
	if got := h.lastDisplay().Line1; got != "P2's turn" {
		t.Fatalf("expected P2's prompt after the hold, got %q", got)
	}
	h.mustPress(2)
	h.expectPhase(PhaseWaitConfirm)
}

func TestMashEndsAtLimit(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4, 3, 1, 0})
	startTwoPlayers(h)
	h.mustPress(2)
	h.advance(time.Second)
	h.mustPress(2)
	h.advance(3 * time.Second)
	h.advance(100 * time.Millisecond)
	h.mustPress(1)
	h.advance(time.Second)
	h.mustPress(1)
	h.advance(3 * time.Second)
	h.advance(3 * time.Second)
	h.advance(3 * time.Second)
	h.expectPhase(PhasePlaying)

	for i := 0; i < 5; i++ {
		h.mustPress(1)
	}
	h.mustPress(2)
	h.advance(9 * time.Second)
	h.expectPhase(PhasePlaying)
	h.advance(time.Second)
	h.expectPhase(PhaseIdle)
	if d := h.lastDisplay(); d.Line1 != "Winner: P1" {
		t.Fatalf("expected P1 to win the mash, got %+v", d)
	}
}

func TestGameOverRecordsMatch(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4, 3})
	startTwoPlayers(h)
	h.c.game.Player(1).Pos = 14

	h.mustPress(2)
	h.advance(time.Second)
	h.mustPress(2)
	h.expectPhase(PhaseGameOver)
	if d := h.lastDisplay(); d.Line2 != "P2 WINS!" {
		t.Fatalf("unexpected game over display %+v", d)
	}

	matches, _ := h.journal.RecentMatches(context.Background(), 0)
	if len(matches) != 1 || matches[0].Outcome != store.OutcomeWon || *matches[0].Winner != 1 {
		t.Fatalf("expected a won match for slot 1, got %+v", matches)
	}

	h.advance(10 * time.Second)
	h.expectPhase(PhaseLobby)
	var statuses []string
	for _, m := range h.bus.On(h.topics.Status()) {
		statuses = append(statuses, string(m.Payload))
	}
	if !contains(statuses, "RESET") {
		t.Fatalf("expected RESET status, got %v", statuses)
	}
	if h.c.game != nil {
		t.Fatal("expected game cleared")
	}
}

func TestRegistrationIdempotentAndOverflow(t *testing.T) {
	h := newHarness(t, 0, nil)
	for _, id := range []string{"alpha", "beta", "alpha", "gamma", "delta"} {
		if err := h.send(h.topics.Register(), `{"deviceId":"`+id+`"}`); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if got := len(h.bus.On(h.topics.DeviceConfig("alpha"))); got != 2 {
		t.Fatalf("expected alpha config published twice, got %d", got)
	}
	raw, ok := h.bus.Retained(h.topics.DeviceConfig("gamma"))
	if !ok {
		t.Fatal("expected retained config for gamma")
	}
	var cfg protocol.DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Slot != 2 || cfg.SensorTopic != "gambit/device/player/2/sensor" || cfg.LEDTopic != "gambit/device/player/2/led" {
		t.Fatalf("unexpected gamma config %+v", cfg)
	}
	if _, ok := h.bus.Retained(h.topics.DeviceConfig("delta")); ok {
		t.Fatal("expected no config for the fourth device")
	}
	if n := h.c.reg.ConnectedCount(); n != 3 {
		t.Fatalf("expected 3 connected devices, got %d", n)
	}
}

func TestDispatchErrorsAreTyped(t *testing.T) {
	h := newHarness(t, 0, nil)
	cases := []struct {
		name    string
		topic   string
		payload string
		check   func(error) bool
	}{
		{"bad button json", "gambit/button", "nope", func(err error) bool {
			var pe *ParseError
			return errors.As(err, &pe) && errors.Is(err, protocol.ErrMalformed)
		}},
		{"unknown topic", "gambit/whatever", "", func(err error) bool {
			var re *RouteError
			return errors.As(err, &re)
		}},
		{"foreign root", "other/button", `{"button":2}`, func(err error) bool {
			var re *RouteError
			return errors.As(err, &re)
		}},
		{"bad device status", "gambit/device/alpha/status", "MAYBE", func(err error) bool {
			var pe *ParseError
			return errors.As(err, &pe)
		}},
		{"button out of range", "gambit/button", `{"button":7}`, func(err error) bool {
			return errors.Is(err, ErrBadButton)
		}},
		{"sensor without game", "gambit/device/player/0/sensor", "CLEAN", func(err error) bool {
			return errors.Is(err, ErrNoGame)
		}},
		{"display ack", "gambit/display/ack", "", func(err error) bool { return err == nil }},
		{"cleared device status", "gambit/device/alpha/status", "", func(err error) bool { return err == nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := h.send(tc.topic, tc.payload); !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
	h.expectPhase(PhaseLobby)
}

func TestLinkReconnectInLobbyResendsPrompt(t *testing.T) {
	h := newHarness(t, 0, nil)
	if err := h.send(h.topics.Connection(), "DISCONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.mustPress(2)
	h.expectPhase(PhaseLobby)
	h.bus.Clear()

	if err := h.send(h.topics.Connection(), "CONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.expectPhase(PhaseRefreshPending)
	h.advance(time.Second)
	h.expectPhase(PhaseRefreshPending)
	h.advance(time.Second)
	h.expectPhase(PhaseLobby)
	if d := h.lastDisplay(); d.Line2 != "Players? 2 or 3" {
		t.Fatalf("expected lobby prompt, got %+v", d)
	}
}

func TestLinkReconnectResendsCachedDisplay(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4})
	startTwoPlayers(h)
	cached := h.bus.LastDisplay()
	h.bus.Clear()

	if err := h.send(h.topics.Connection(), "DISCONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(10 * time.Second)
	if n := len(h.bus.Messages()); n != 0 {
		t.Fatalf("expected nothing published while the link is down, got %d", n)
	}
	if err := h.send(h.topics.Connection(), "CONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(2 * time.Second)
	h.expectPhase(PhaseIdle)
	msgs := h.bus.On(h.topics.Display())
	if len(msgs) != 1 || string(msgs[0].Payload) != string(cached) {
		t.Fatalf("expected the cached display resent once, got %d messages", len(msgs))
	}
}

func TestLinkOutagePausesTimers(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4, 3})
	startTwoPlayers(h)
	h.mustPress(2)
	h.advance(time.Second)
	h.mustPress(2)
	h.expectPhase(PhaseTurnNext)

	h.advance(time.Second)
	if err := h.send(h.topics.Connection(), "DISCONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(10 * time.Second)
	if err := h.send(h.topics.Connection(), "CONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(2 * time.Second)
	h.expectPhase(PhaseTurnNext)
	h.advance(time.Second)
	h.expectPhase(PhaseTurnNext)
	h.advance(time.Second)
	h.expectPhase(PhaseIdle)
}

func registerPair(h *harness) {
	h.t.Helper()
	for _, id := range []string{"alpha", "beta"} {
		if err := h.send(h.topics.Register(), `{"deviceId":"`+id+`"}`); err != nil {
			h.t.Fatal(err)
		}
	}
}

func TestMeepleDisconnectAndReturn(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4})
	registerPair(h)
	startTwoPlayers(h)
	cached := h.bus.LastDisplay()

	if err := h.send(h.topics.DeviceStatus("beta"), "OFFLINE"); err != nil {
		t.Fatal(err)
	}
	h.expectPhase(PhaseMeepleDisconnect)
	if d := h.lastDisplay(); d.Line1 != "P2 disconnected" {
		t.Fatalf("expected disconnect notice, got %+v", d)
	}
	if err := h.press(2); !errors.Is(err, ErrNotAccepted) {
		t.Fatalf("expected presses refused while waiting, got %v", err)
	}

	h.advance(5 * time.Second)
	if err := h.send(h.topics.DeviceStatus("beta"), "ONLINE"); err != nil {
		t.Fatal(err)
	}
	h.expectPhase(PhaseIdle)
	msgs := h.bus.On(h.topics.Display())
	if string(msgs[len(msgs)-1].Payload) != string(cached) {
		t.Fatalf("expected cached display resent, got %s", msgs[len(msgs)-1].Payload)
	}
}

func TestMeepleTimeoutFallsBackToButtons(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4, 3})
	registerPair(h)
	startTwoPlayers(h)
	h.mustPress(2)
	h.expectPhase(PhaseWaitForMove)

	if err := h.send(h.topics.DeviceStatus("beta"), "OFFLINE"); err != nil {
		t.Fatal(err)
	}
	h.advance(29 * time.Second)
	h.expectPhase(PhaseMeepleDisconnect)
	h.advance(time.Second)
	h.expectPhase(PhaseWaitConfirm)
	if d := h.lastDisplay(); d.Line2 != "Press to confirm" {
		t.Fatalf("expected confirm prompt, got %+v", d)
	}
	// the debounce window was paused along with the turn
	h.mustPress(2)
	h.expectPhase(PhaseWaitConfirm)
	h.advance(time.Second)
	h.mustPress(2)
	h.expectPhase(PhaseTurnNext)
}

func TestLowConnectedCountAborts(t *testing.T) {
	h := newHarness(t, 2, []int{2, 4})
	registerPair(h)
	startTwoPlayers(h)

	if err := h.send(h.topics.DeviceStatus("beta"), "OFFLINE"); err != nil {
		t.Fatal(err)
	}
	h.advance(100 * time.Millisecond)
	h.advance(29 * time.Second)
	if h.c.t.phase == PhaseLobby {
		t.Fatal("aborted too early")
	}
	h.advance(time.Second)
	h.expectPhase(PhaseLobby)

	matches, _ := h.journal.RecentMatches(context.Background(), 0)
	if len(matches) != 1 || matches[0].Outcome != store.OutcomeAborted {
		t.Fatalf("expected an aborted match, got %+v", matches)
	}
	if n := len(h.c.reg.Devices()); n != 0 {
		t.Fatalf("expected registry reset, got %d devices", n)
	}
	if got, _ := h.bus.Retained(h.topics.Status()); string(got) != "LOBBY" {
		t.Fatalf("expected LOBBY status after reset, got %q", got)
	}
}

func TestChoosingTwoPlayersReleasesThirdSlot(t *testing.T) {
	h := newHarness(t, 0, nil)
	for _, id := range []string{"alpha", "beta", "gamma"} {
		if err := h.send(h.topics.Register(), `{"deviceId":"`+id+`"}`); err != nil {
			t.Fatal(err)
		}
	}
	h.mustPress(2)
	if _, ok := h.c.reg.SlotOf("gamma"); ok {
		t.Fatal("expected gamma released")
	}
	if _, ok := h.bus.Retained(h.topics.DeviceConfig("gamma")); ok {
		t.Fatal("expected gamma config cleared")
	}
	if s, ok := h.c.reg.SlotOf("beta"); !ok || s != 1 {
		t.Fatalf("expected beta kept on slot 1, got %d %v", s, ok)
	}
}

func TestDeviceReturnsDuringLinkOutage(t *testing.T) {
	h := newHarness(t, 2, []int{2, 4})
	registerPair(h)
	startTwoPlayers(h)

	if err := h.send(h.topics.DeviceStatus("beta"), "OFFLINE"); err != nil {
		t.Fatal(err)
	}
	h.advance(100 * time.Millisecond)
	h.expectPhase(PhaseMeepleDisconnect)

	if err := h.send(h.topics.Connection(), "DISCONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(5 * time.Second)
	if err := h.send(h.topics.DeviceStatus("beta"), "ONLINE"); err != nil {
		t.Fatal(err)
	}
	if !h.c.reg.Online(1) || h.c.reg.ConnectedCount() != 2 {
		t.Fatalf("expected beta recorded online during the outage, connected %d", h.c.reg.ConnectedCount())
	}
	if err := h.press(2); err != nil {
		t.Fatalf("button during outage must be ignored, got %v", err)
	}

	h.advance(25 * time.Second)
	if err := h.send(h.topics.Connection(), "CONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(2 * time.Second)
	h.expectPhase(PhaseIdle)
	h.advance(100 * time.Millisecond)
	h.expectPhase(PhaseIdle)
	if h.c.game == nil {
		t.Fatal("game must survive the outage")
	}
}

func TestLinkOutageExtendsReconnectWindow(t *testing.T) {
	h := newHarness(t, 0, []int{2, 4})
	registerPair(h)
	startTwoPlayers(h)

	if err := h.send(h.topics.DeviceStatus("beta"), "OFFLINE"); err != nil {
		t.Fatal(err)
	}
	h.advance(5 * time.Second)
	if err := h.send(h.topics.Connection(), "DISCONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(20 * time.Second)
	if err := h.send(h.topics.Connection(), "CONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(2 * time.Second)
	h.expectPhase(PhaseMeepleDisconnect)

	// 5s of the window were used before the outage
	h.advance(24 * time.Second)
	h.expectPhase(PhaseMeepleDisconnect)
	h.advance(time.Second)
	h.expectPhase(PhaseIdle)
}

func TestLinkOutageExtendsLowPlayersWindow(t *testing.T) {
	h := newHarness(t, 2, []int{2, 4})
	registerPair(h)
	startTwoPlayers(h)

	if err := h.send(h.topics.DeviceStatus("beta"), "OFFLINE"); err != nil {
		t.Fatal(err)
	}
	h.advance(100 * time.Millisecond)
	h.advance(19900 * time.Millisecond)
	if err := h.send(h.topics.Connection(), "DISCONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(20 * time.Second)
	if err := h.send(h.topics.Connection(), "CONNECTED"); err != nil {
		t.Fatal(err)
	}
	h.advance(2 * time.Second)
	h.expectPhase(PhaseMeepleDisconnect)

	h.advance(8 * time.Second)
	h.expectPhase(PhaseMeepleDisconnect)
	h.advance(2 * time.Second)
	h.expectPhase(PhaseIdle)
	h.advance(200 * time.Millisecond)
	h.expectPhase(PhaseLobby)
}

func TestShutdownPublishesOfflineMarkers(t *testing.T) {
	h := newHarness(t, 0, nil)
	registerPair(h)
	h.c.Shutdown()
	if got, _ := h.bus.Retained(h.topics.Status()); string(got) != "OFFLINE" {
		t.Fatalf("expected OFFLINE status, got %q", got)
	}
	if _, ok := h.bus.Retained(h.topics.DeviceConfig("alpha")); ok {
		t.Fatal("expected alpha config cleared")
	}
	if n := len(h.bus.On(h.topics.DeviceStatus("alpha"))); n != 0 {
		t.Fatalf("device status is inbound only, got %d publishes", n)
	}
}

func TestRunSurvivesPanicsAndServesQueries(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.c.rnd = nil // initiative roll will panic

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()

	h.c.Deliver(h.topics.Button(), []byte(`{"button":2}`))
	h.c.Deliver(h.topics.Button(), []byte(`{"button":1}`))

	qctx, qcancel := context.WithTimeout(ctx, 2*time.Second)
	defer qcancel()
	snap, err := h.c.Snapshot(qctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Phase != PhaseIdle || len(snap.Players) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if err := h.c.Abort(qctx, "admin reset"); err != nil {
		t.Fatal(err)
	}
	snap, err = h.c.Snapshot(qctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Phase != PhaseLobby {
		t.Fatalf("expected lobby after abort, got %s", snap.Phase)
	}
	matches, _ := h.journal.RecentMatches(ctx, 0)
	if len(matches) != 1 || matches[0].Reason != "admin reset" {
		t.Fatalf("expected aborted match recorded, got %+v", matches)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
