// internal/protocol/topics.go
//
// Topic layout of the game bus.
//
// Inbound (peripherals → controller):
//   <root>/button                       {"button": int}
//   <root>/connection                   CONNECTED | DISCONNECTED
//   <root>/device/register              {"deviceId": string}
//   <root>/device/<id>/status           ONLINE | OFFLINE
//   <root>/device/player/<slot>/sensor  CLEAN | DETECTED
//   <root>/display/ack                  empty
//
// Outbound (controller → peripherals):
//   <root>/device/<id>/config           {"slot", "sensorTopic", "ledTopic"} (retained)
//   <root>/device/player/<slot>/led     ON | OFF | BLINK
//   <root>/display                      {"line1", "line2", "buttons"}
//   <root>/sound                        sound command id
//   <root>/status                       LOBBY | PLAYING | RESET | OFFLINE (retained)

package protocol

import (
	"strconv"
	"strings"
)

// DefaultRoot is the topic prefix used when none is configured.
const DefaultRoot = "gambit"

// Kind classifies an inbound topic.
type Kind int

const (
	KindUnknown Kind = iota
	KindButton
	KindConnection
	KindRegister
	KindDeviceStatus
	KindSensor
	KindDisplayAck
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindConnection:
		return "connection"
	case KindRegister:
		return "register"
	case KindDeviceStatus:
		return "device_status"
	case KindSensor:
		return "sensor"
	case KindDisplayAck:
		return "display_ack"
	default:
		return "unknown"
	}
}

// Topics builds and classifies topic names under a common root.
type Topics struct {
	root string
}

// NewTopics returns the topic layout rooted at root (DefaultRoot when empty).
func NewTopics(root string) Topics {
	root = strings.Trim(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	return Topics{root: root}
}

func (t Topics) join(parts ...string) string {
	return t.root + "/" + strings.Join(parts, "/")
}

func (t Topics) Button() string { return t.join("button") }
func (t Topics) Connection() string { return t.join("connection") }
func (t Topics) Register() string { return t.join("device", "register") }
func (t Topics) DisplayAck() string { return t.join("display", "ack") }
func (t Topics) Display() string { return t.join("display") }
func (t Topics) Sound() string { return t.join("sound") }
func (t Topics) Status() string { return t.join("status") }
func (t Topics) DeviceStatusAll() string { return t.join("device", "+", "status") }
func (t Topics) SensorAll() string { return t.join("device", "player", "+", "sensor") }

func (t Topics) DeviceConfig(id string) string { return t.join("device", id, "config") }
func (t Topics) DeviceStatus(id string) string { return t.join("device", id, "status") }
func (t Topics) Sensor(slot int) string { return t.join("device", "player", strconv.Itoa(slot), "sensor") }
func (t Topics) LED(slot int) string { return t.join("device", "player", strconv.Itoa(slot), "led") }

// Subscriptions lists every inbound topic filter.
func (t Topics) Subscriptions() []string {
	return []string{
		t.Button(),
		t.Connection(),
		t.Register(),
		t.DeviceStatusAll(),
		t.SensorAll(),
		t.DisplayAck(),
	}
}

// Route is a classified inbound topic.
type Route struct {
	Kind     Kind
	DeviceID string // KindDeviceStatus
	Slot     int    // KindSensor
}

// Classify maps an inbound topic to its route.
// Malformed slot segments classify as KindUnknown.
func (t Topics) Classify(topic string) Route {
	rest, ok := strings.CutPrefix(topic, t.root+"/")
	if !ok {
		return Route{Kind: KindUnknown}
	}
	parts := strings.Split(rest, "/")
	switch {
	case rest == "button":
		return Route{Kind: KindButton}
	case rest == "connection":
		return Route{Kind: KindConnection}
	case rest == "device/register":
		return Route{Kind: KindRegister}
	case rest == "display/ack":
		return Route{Kind: KindDisplayAck}
	case len(parts) == 4 && parts[0] == "device" && parts[1] == "player" && parts[3] == "sensor":
		slot, err := strconv.Atoi(parts[2])
		if err != nil {
			return Route{Kind: KindUnknown}
		}
		return Route{Kind: KindSensor, Slot: slot}
	case len(parts) == 3 && parts[0] == "device" && parts[2] == "status" && parts[1] != "":
		return Route{Kind: KindDeviceStatus, DeviceID: parts[1]}
	}
	return Route{Kind: KindUnknown}
}
