package controller

import (
	"time"

	"github.com/robalobadob/meeples-gambit/internal/devices"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
)

// HandleMessage runs one inbound message through parse, route and apply.
// The returned error is typed by stage (*ParseError, *RouteError, *ApplyError).
func (c *Controller) HandleMessage(topic string, payload []byte, at time.Time) error {
	route := c.topics.Classify(topic)
	switch route.Kind {
	case protocol.KindConnection:
		conn, err := protocol.ParseConnection(payload)
		if err != nil {
			return &ParseError{Topic: topic, Err: err}
		}
		c.onConnection(conn, at)
		return nil

	case protocol.KindDisplayAck:
		// consumed by the bus adapter
		return nil

	case protocol.KindRegister:
		id, err := protocol.ParseRegister(payload)
		if err != nil {
			return &ParseError{Topic: topic, Err: err}
		}
		return wrapApply(topic, c.onRegister(id, at))

	case protocol.KindDeviceStatus:
		if len(payload) == 0 {
			// a cleared retained status
			return nil
		}
		st, ok := devices.ParseStatus(string(payload))
		if !ok {
			return &ParseError{Topic: topic, Err: protocol.ErrMalformed}
		}
		c.onDeviceStatus(route.DeviceID, st, at)
		return nil
	}

	// registry traffic above is kept during an outage; player input is not
	if c.linkDown {
		c.log.Debug().Str("topic", topic).Msg("link down, input ignored")
		return nil
	}

	switch route.Kind {
	case protocol.KindButton:
		button, err := protocol.ParseButton(payload)
		if err != nil {
			return &ParseError{Topic: topic, Err: err}
		}
		return wrapApply(topic, c.onButton(button, at))

	case protocol.KindSensor:
		reading, err := protocol.ParseReading(payload)
		if err != nil {
			return &ParseError{Topic: topic, Err: err}
		}
		return wrapApply(topic, c.onSensor(route.Slot, reading, at))
	}
	return &RouteError{Topic: topic}
}

func wrapApply(topic string, err error) error {
	if err == nil {
		return nil
	}
	return &ApplyError{Topic: topic, Err: err}
}

// onButton routes a console press by phase.
func (c *Controller) onButton(button int, now time.Time) error {
	if button < 1 || button > 3 {
		return ErrBadButton
	}
	switch c.t.phase {
	case PhaseLobby:
		return c.chooseLobby(button, now)
	case PhaseIdle, PhaseWaitConfirm:
		if c.game == nil {
			return ErrNoGame
		}
		if c.game.CurrentPlayer() == nil {
			return c.rollInitiative(button-1, now)
		}
		if now.Before(c.t.ignoreInputsUntil) {
			return nil
		}
		if c.t.phase == PhaseWaitConfirm {
			return c.confirmMove(button-1, now)
		}
		return c.rollTurn(button-1, now)
	case PhaseWaitingSignal, PhasePlaying:
		return c.minigamePress(button-1, now)
	}
	return ErrNotAccepted
}
