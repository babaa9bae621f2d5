package controller

import (
	"errors"
	"fmt"
)

// Apply-stage causes.
var (
	ErrNoGame        = errors.New("no game in progress")
	ErrBadButton     = errors.New("button out of range")
	ErrBadSlot       = errors.New("player slot out of range")
	ErrLobbyChoice   = errors.New("lobby accepts 2 or 3 players")
	ErrAlreadyRolled = errors.New("initiative already rolled")
	ErrNotYourTurn   = errors.New("not this player's turn")
	ErrNotAccepted   = errors.New("input not accepted in current phase")
)

// ParseError means the payload could not be decoded.
type ParseError struct {
	Topic string
	Err   error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Topic, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// RouteError means the topic is not part of the inbound protocol.
type RouteError struct {
	Topic string
}

func (e *RouteError) Error() string { return fmt.Sprintf("route %s: unknown topic", e.Topic) }

// ApplyError means a well-formed event could not be applied to the game.
type ApplyError struct {
	Topic string
	Err   error
}

func (e *ApplyError) Error() string { return fmt.Sprintf("apply %s: %v", e.Topic, e.Err) }
func (e *ApplyError) Unwrap() error { return e.Err }

// routine reports errors that are part of normal play (late or early presses).
func routine(err error) bool {
	return errors.Is(err, ErrNotAccepted) || errors.Is(err, ErrNotYourTurn)
}
