// internal/bus/bus.go
//
// Message bus contract used by the controller.
// Responsibilities:
//   - Publish with per-message options (retain, cache as last display, wait for ack).
//   - Subscribe to inbound topic filters; inbound messages reach a Handler.
//   - Ack-gated flow control for display updates (bounded wait, never blocks forever).
//
// Implementations: MQTT (paho) for the real bus, Memory for tests and dry runs.

package bus

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// DefaultAckTimeout bounds how long a display update waits for the previous ack.
const DefaultAckTimeout = 500 * time.Millisecond

// Options select per-publish behavior.
type Options struct {
	Retain  bool // broker keeps the last value for late subscribers
	Cache   bool // remember the payload as the last display
	WaitAck bool // wait (bounded) for the previous display to be acknowledged
}

// Handler receives inbound messages. It runs on the transport's goroutine
// and must not block.
type Handler func(topic string, payload []byte)

// Bus is the publish/subscribe contract.
type Bus interface {
	Publish(topic string, payload any, opts Options) error
	Subscribe(topic string) error
	LastDisplay() []byte
}

// Encode turns a payload into bytes: []byte as-is, string-kinded values as
// text, everything else as JSON.
func Encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	if rv := reflect.ValueOf(payload); rv.Kind() == reflect.String {
		return []byte(rv.String()), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// flow holds the ack token and the display cache shared by implementations.
type flow struct {
	acks    chan struct{} // holds one token when the last display was acknowledged
	timeout time.Duration
	mu      sync.Mutex // guards last
	last    []byte
}

func newFlow(timeout time.Duration) *flow {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	f := &flow{acks: make(chan struct{}, 1), timeout: timeout}
	f.acks <- struct{}{}
	return f
}

// before runs the pre-publish steps for opts. It reports false when the ack
// wait timed out; the publish goes ahead regardless.
func (f *flow) before(payload []byte, opts Options) bool {
	acked := true
	if opts.WaitAck {
		t := time.NewTimer(f.timeout)
		select {
		case <-f.acks:
		case <-t.C:
			acked = false
		}
		t.Stop()
	}
	if opts.Cache {
		f.mu.Lock()
		f.last = append([]byte(nil), payload...)
		f.mu.Unlock()
	}
	return acked
}

// ack releases the next display update. Extra acks are dropped.
func (f *flow) ack() {
	select {
	case f.acks <- struct{}{}:
	default:
	}
}

func (f *flow) lastDisplay() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return nil
	}
	return append([]byte(nil), f.last...)
}
