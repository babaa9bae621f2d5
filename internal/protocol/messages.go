// internal/protocol/messages.go
//
// Payloads exchanged with the peripherals.
// JSON payloads use the field names the firmware expects; everything else is
// a bare upper-case text command.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed wraps every payload decoding failure.
var ErrMalformed = errors.New("malformed payload")

// DisplayWidth is the number of characters per display line.
const DisplayWidth = 16

// ButtonEvent is a console button press. Buttons are numbered from 1.
type ButtonEvent struct {
	Button int `json:"button"`
}

// RegisterRequest is sent by a meeple node when it boots.
type RegisterRequest struct {
	DeviceID string `json:"deviceId"`
	MAC      string `json:"mac,omitempty"` // older firmware
}

// DeviceConfig tells a meeple node which slot it plays and where to talk.
type DeviceConfig struct {
	Slot        int    `json:"slot"`
	SensorTopic string `json:"sensorTopic"`
	LEDTopic    string `json:"ledTopic"`
}

// Display is a two-line screen update plus the mask of enabled buttons.
type Display struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
	Buttons []int  `json:"buttons"`
}

// NewDisplay builds a display payload, clipping lines to DisplayWidth.
func NewDisplay(line1, line2 string, buttons ...int) Display {
	if buttons == nil {
		buttons = []int{}
	}
	return Display{Line1: clip(line1), Line2: clip(line2), Buttons: buttons}
}

func clip(s string) string {
	r := []rune(s)
	if len(r) > DisplayWidth {
		return string(r[:DisplayWidth])
	}
	return s
}

// Connection is the base station link state.
type Connection string

const (
	Connected    Connection = "CONNECTED"
	Disconnected Connection = "DISCONNECTED"
)

// Reading is a piece sensor reading.
type Reading string

const (
	Clean    Reading = "CLEAN"
	Detected Reading = "DETECTED"
)

// LED is a per-player LED command.
type LED string

const (
	LEDOn    LED = "ON"
	LEDOff   LED = "OFF"
	LEDBlink LED = "BLINK"
)

// Sound is a buzzer cue id.
type Sound string

const (
	SoundRoll          Sound = "ROLL"
	SoundWin           Sound = "WIN"
	SoundDamage        Sound = "DAMAGE"
	SoundHeal          Sound = "HEAL"
	SoundSignal        Sound = "SIGNAL"
	SoundMinigameStart Sound = "MINIGAME_START"
	SoundGo            Sound = "GO"
	SoundEnd           Sound = "END"
	SoundFalseStart    Sound = "FALSE_START"
)

// Status is the controller's retained status marker.
type Status string

const (
	StatusLobby   Status = "LOBBY"
	StatusPlaying Status = "PLAYING"
	StatusReset   Status = "RESET"
	StatusOffline Status = "OFFLINE"
)

// ParseButton decodes a button press.
func ParseButton(b []byte) (int, error) {
	var ev ButtonEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return 0, fmt.Errorf("%w: button: %v", ErrMalformed, err)
	}
	return ev.Button, nil
}

// ParseRegister decodes a registration request and returns the device id.
func ParseRegister(b []byte) (string, error) {
	var req RegisterRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return "", fmt.Errorf("%w: register: %v", ErrMalformed, err)
	}
	id := strings.TrimSpace(req.DeviceID)
	if id == "" {
		id = strings.TrimSpace(req.MAC)
	}
	if id == "" || strings.ContainsAny(id, "/+#") {
		return "", fmt.Errorf("%w: register: invalid device id %q", ErrMalformed, id)
	}
	return id, nil
}

// ParseConnection decodes a link state notification.
func ParseConnection(b []byte) (Connection, error) {
	switch c := Connection(text(b)); c {
	case Connected, Disconnected:
		return c, nil
	}
	return "", fmt.Errorf("%w: connection %q", ErrMalformed, string(b))
}

// ParseReading decodes a piece sensor reading.
func ParseReading(b []byte) (Reading, error) {
	switch r := Reading(text(b)); r {
	case Clean, Detected:
		return r, nil
	}
	return "", fmt.Errorf("%w: sensor %q", ErrMalformed, string(b))
}

func text(b []byte) string {
	return strings.ToUpper(strings.TrimSpace(string(b)))
}
