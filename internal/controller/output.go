package controller

import (
	"github.com/robalobadob/meeples-gambit/internal/bus"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
)

var (
	noOpts   = bus.Options{}
	retained = bus.Options{Retain: true}
	// screen updates wait for the previous ack and become the cached display
	screen = bus.Options{WaitAck: true, Cache: true}
	// transient messages are ack-gated but never resent after a reconnect
	transient = bus.Options{WaitAck: true}
)

func (c *Controller) publish(topic string, payload any, opts bus.Options) {
	if err := c.bus.Publish(topic, payload, opts); err != nil {
		c.log.Error().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// show publishes a screen update and caches it for reconnect resends.
func (c *Controller) show(d protocol.Display) {
	c.log.Debug().Str("line1", d.Line1).Str("line2", d.Line2).Ints("buttons", d.Buttons).Msg("display")
	c.publish(c.topics.Display(), d, screen)
}

// notice publishes a screen update that is not cached.
func (c *Controller) notice(d protocol.Display) {
	c.log.Debug().Str("line1", d.Line1).Str("line2", d.Line2).Msg("notice")
	c.publish(c.topics.Display(), d, transient)
}

func (c *Controller) sound(s protocol.Sound) {
	c.publish(c.topics.Sound(), string(s), noOpts)
}

func (c *Controller) led(slot int, l protocol.LED) {
	c.publish(c.topics.LED(slot), string(l), noOpts)
}

func (c *Controller) allLEDs(l protocol.LED) {
	if c.game == nil {
		return
	}
	for _, p := range c.game.Players {
		c.led(p.ID, l)
	}
}

func (c *Controller) status(s protocol.Status) {
	c.publish(c.topics.Status(), string(s), retained)
}
