// internal/controller/controller.go
//
// The controller owns every piece of session state: the game, the device
// registry and the timing context. It is an actor: bus messages, ticks,
// status queries and admin commands are queued and processed one at a time
// by Run, so no other goroutine ever touches that state.
//
// Responsibilities:
//   - Dispatch inbound bus messages (parse → route → apply).
//   - Advance timer-driven phases on every tick.
//   - Track device liveness and pause/resume the game around outages.
//   - Publish display, sound, LED, config and status messages.

package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/meeples-gambit/internal/bus"
	"github.com/robalobadob/meeples-gambit/internal/config"
	"github.com/robalobadob/meeples-gambit/internal/devices"
	"github.com/robalobadob/meeples-gambit/internal/game"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
	"github.com/robalobadob/meeples-gambit/internal/store"
)

// Rand supplies dice rolls and random delays. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// Publisher is the part of the bus the controller uses.
type Publisher interface {
	Publish(topic string, payload any, opts bus.Options) error
	LastDisplay() []byte
}

// Deps bundles the controller's collaborators.
type Deps struct {
	Bus     Publisher
	Topics  protocol.Topics
	Board   game.Board
	Journal store.Journal // optional
	Rand    Rand
	Clock   func() time.Time // defaults to time.Now
	Timing  config.Timing
	Log     zerolog.Logger
	Queue   int // inbound queue size, defaults to 256
}

// Controller is the single owner of game, registry and timers.
type Controller struct {
	bus     Publisher
	topics  protocol.Topics
	board   game.Board
	journal store.Journal
	rnd     Rand
	now     func() time.Time
	tm      config.Timing
	log     zerolog.Logger

	events chan any

	reg      *devices.Registry
	game     *game.Game
	rolls    []game.InitiativeRoll
	t        timers
	linkDown bool
	prompted bool // turn prompt shown for the current IDLE turn

	disconnectedSlot int // slot in MEEPLE_DISCONNECT, -1 when none
	pendingSteps     int // dice result awaiting confirmation

	matchID    string
	matchStart time.Time
}

// New builds a controller in the LOBBY phase. Nothing is published until
// Start or the first tick.
func New(d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Queue <= 0 {
		d.Queue = 256
	}
	c := &Controller{
		bus:              d.Bus,
		topics:           d.Topics,
		board:            d.Board,
		journal:          d.Journal,
		rnd:              d.Rand,
		now:              d.Clock,
		tm:               d.Timing,
		log:              d.Log.With().Str("component", "controller").Logger(),
		events:           make(chan any, d.Queue),
		reg:              devices.NewRegistry(game.MaxPlayers),
		disconnectedSlot: -1,
	}
	c.t.phase = PhaseLobby
	c.t.phaseStart = c.now()
	return c
}

type message struct {
	topic   string
	payload []byte
	at      time.Time
}

type tick struct{}

type snapshotRequest struct{ reply chan Snapshot }

type abortRequest struct {
	reason string
	done   chan struct{}
}

// Deliver queues an inbound bus message. It never blocks; when the queue is
// full the message is dropped and logged. Safe to use as a bus.Handler.
func (c *Controller) Deliver(topic string, payload []byte) {
	msg := message{topic: topic, payload: append([]byte(nil), payload...), at: c.now()}
	select {
	case c.events <- msg:
	default:
		c.log.Warn().Str("topic", topic).Msg("event queue full, message dropped")
	}
}

// Start publishes the lobby status and prompt.
func (c *Controller) Start() {
	c.enterLobby(c.now())
}

// Run processes queued events and ticks until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.tm.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.process(ev)
		case <-ticker.C:
			c.process(tick{})
		}
	}
}

// process handles one event to completion. A panic is logged and the event
// discarded; the loop keeps running.
func (c *Controller) process(ev any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("event", describe(ev)).Str("phase", string(c.t.phase)).
				Interface("panic", r).Msg("event processing failed")
		}
	}()
	switch e := ev.(type) {
	case message:
		if err := c.HandleMessage(e.topic, e.payload, e.at); err != nil {
			c.logDispatch(e.topic, err)
		}
	case tick:
		c.Tick(c.now())
	case snapshotRequest:
		e.reply <- c.snapshot()
	case abortRequest:
		c.abortGame(c.now(), e.reason)
		close(e.done)
	}
}

func describe(ev any) string {
	switch e := ev.(type) {
	case message:
		return "message " + e.topic
	case tick:
		return "tick"
	case snapshotRequest:
		return "snapshot"
	case abortRequest:
		return "abort"
	}
	return fmt.Sprintf("%T", ev)
}

func (c *Controller) logDispatch(topic string, err error) {
	lvl := zerolog.WarnLevel
	if routine(err) {
		lvl = zerolog.DebugLevel
	}
	c.log.WithLevel(lvl).Err(err).Str("topic", topic).Str("phase", string(c.t.phase)).Msg("event dropped")
}

// Snapshot returns a consistent view of the session, taken on the event loop.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	select {
	case c.events <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-req.reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Abort ends the running game (if any) and returns to the lobby.
func (c *Controller) Abort(ctx context.Context, reason string) error {
	req := abortRequest{reason: reason, done: make(chan struct{})}
	select {
	case c.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown publishes the offline markers. Call it after Run has returned.
func (c *Controller) Shutdown() {
	for _, d := range c.reg.Devices() {
		c.publish(c.topics.DeviceConfig(d.ID), nil, bus.Options{Retain: true})
	}
	c.show(protocol.NewDisplay("Meeple's Gambit", "Controller off"))
	c.status(protocol.StatusOffline)
	c.log.Info().Msg("offline markers published")
}

func (c *Controller) setPhase(p Phase, now time.Time) {
	if c.t.phase != p {
		c.log.Debug().Str("from", string(c.t.phase)).Str("to", string(p)).Msg("phase")
	}
	c.t.phase = p
	c.t.phaseStart = now
}

func (c *Controller) elapsed(now time.Time) time.Duration {
	return now.Sub(c.t.phaseStart)
}
