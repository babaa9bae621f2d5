package controller

import "time"

// Phase is the real-time orchestration state. It sits on top of the game's
// logical state and decides which inputs are accepted and which timer runs.
type Phase string

const (
	PhaseLobby              Phase = "LOBBY"
	PhaseIdle               Phase = "IDLE"
	PhaseInitiativeCooldown Phase = "INITIATIVE_COOLDOWN"
	PhaseAnnounce           Phase = "ANNOUNCE"
	PhaseCountdown          Phase = "COUNTDOWN"
	PhaseWaitingSignal      Phase = "WAITING_SIGNAL"
	PhasePlaying            Phase = "PLAYING"
	PhaseWaitForMove        Phase = "WAIT_FOR_MOVE"
	PhaseWaitConfirm        Phase = "WAIT_CONFIRM"
	PhaseTurnNext           Phase = "TURN_NEXT"
	PhaseRefreshPending     Phase = "REFRESH_PENDING"
	PhaseMeepleDisconnect   Phase = "MEEPLE_DISCONNECT"
	PhaseGameOver           Phase = "GAME_OVER"
)

// interrupting phases suspend another phase and resume it later.
func (p Phase) interrupting() bool {
	return p == PhaseRefreshPending || p == PhaseMeepleDisconnect
}

// timers is the controller's timing context.
type timers struct {
	phase             Phase
	phaseStart        time.Time
	reactionTrigger   time.Time     // reaction signal (REACTION) or GO (TIME)
	timeLimit         time.Duration // PLAYING length
	ignoreInputsUntil time.Time     // debounce horizon for buttons

	previousPhase Phase     // phase suspended by an interrupting phase
	previousStart time.Time // its phaseStart
	pausedAt      time.Time // zero when nothing is suspended

	meepleSince time.Time // start of the device reconnect window
	lowSince    time.Time // start of the low connected-count window
	linkLostAt  time.Time // start of the current base station outage
}

// shift moves every pending deadline forward by d.
func (t *timers) shift(d time.Duration) {
	t.previousStart = t.previousStart.Add(d)
	if !t.reactionTrigger.IsZero() {
		t.reactionTrigger = t.reactionTrigger.Add(d)
	}
	if !t.ignoreInputsUntil.IsZero() && t.ignoreInputsUntil.After(t.pausedAt) {
		t.ignoreInputsUntil = t.ignoreInputsUntil.Add(d)
	}
}

// endOutage moves the liveness windows past a base station outage that ran
// until now. A window opened during the outage starts now.
func (t *timers) endOutage(now time.Time) {
	if t.linkLostAt.IsZero() {
		return
	}
	t.meepleSince = skipOutage(t.meepleSince, t.linkLostAt, now)
	t.lowSince = skipOutage(t.lowSince, t.linkLostAt, now)
	t.linkLostAt = time.Time{}
}

func skipOutage(ts, from, to time.Time) time.Time {
	switch {
	case ts.IsZero():
		return ts
	case ts.Before(from):
		return ts.Add(to.Sub(from))
	}
	return to
}
