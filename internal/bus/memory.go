// internal/bus/memory.go
//
// In-memory implementation of the Bus interface.
// Used by tests and by dry runs without a broker.
//
// Characteristics:
//   - Records every publish in order; retained payloads are kept per topic.
//   - Inject delivers an inbound message to the handler (acks are consumed here).
//   - AutoAck acknowledges every display immediately, so WaitAck never stalls.
//   - Concurrency-safe via Mutex.

package bus

import (
	"sync"
	"time"
)

// Message is a recorded publish.
type Message struct {
	Topic   string
	Payload []byte
	Options Options
}

// Memory is a Bus that keeps everything in process.
type Memory struct {
	flow     *flow
	ackTopic string
	autoAck  bool

	mu        sync.Mutex
	handler   Handler
	published []Message
	retained  map[string][]byte
	subs      []string
	acked     bool // last WaitAck publish found its ack
}

// NewMemory constructs a Memory bus. Messages on ackTopic release the ack gate.
func NewMemory(ackTopic string, ackTimeout time.Duration, autoAck bool) *Memory {
	return &Memory{
		flow:     newFlow(ackTimeout),
		ackTopic: ackTopic,
		autoAck:  autoAck,
		retained: make(map[string][]byte),
	}
}

// SetHandler installs the inbound handler used by Inject.
func (m *Memory) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Publish records the message after running the ack/cache steps.
func (m *Memory) Publish(topic string, payload any, opts Options) error {
	b, err := Encode(payload)
	if err != nil {
		return err
	}
	acked := m.flow.before(b, opts)

	m.mu.Lock()
	m.published = append(m.published, Message{Topic: topic, Payload: b, Options: opts})
	if opts.Retain {
		if len(b) == 0 {
			delete(m.retained, topic)
		} else {
			m.retained[topic] = b
		}
	}
	if opts.WaitAck {
		m.acked = acked
	}
	m.mu.Unlock()

	if opts.WaitAck && m.autoAck {
		m.flow.ack()
	}
	return nil
}

// Subscribe records the topic filter.
func (m *Memory) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, topic)
	return nil
}

// LastDisplay returns the last payload published with Cache.
func (m *Memory) LastDisplay() []byte { return m.flow.lastDisplay() }

// Inject simulates an inbound message.
func (m *Memory) Inject(topic string, payload []byte) {
	if topic == m.ackTopic {
		m.flow.ack()
		return
	}
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

// Messages returns a copy of every recorded publish.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published...)
}

// On returns the recorded publishes for one topic.
func (m *Memory) On(topic string) []Message {
	var out []Message
	for _, msg := range m.Messages() {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Retained returns the retained payload for topic.
func (m *Memory) Retained(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.retained[topic]
	return b, ok
}

// Subscriptions returns the recorded topic filters.
func (m *Memory) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subs...)
}

// LastAcked reports whether the most recent WaitAck publish found its ack in time.
func (m *Memory) LastAcked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// Clear forgets the recorded publishes.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}
