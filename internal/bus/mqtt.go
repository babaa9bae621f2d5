// internal/bus/mqtt.go
//
// MQTT implementation of the Bus interface (eclipse/paho).
// Responsibilities:
//   - Connect with auto-reconnect and a retained OFFLINE last will.
//   - Re-subscribe every registered filter on each (re)connect.
//   - Consume display acks internally; forward everything else to the Handler.
//   - Report transport loss/recovery as connection events on the connection topic.
//
// Publishes use QoS 0 and never wait on the broker; only WaitAck blocks (bounded).

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	Broker          string // e.g. tcp://localhost:1883
	ClientID        string
	AckTopic        string // display acks, consumed by the bus
	ConnectionTopic string // transport loss/recovery is reported here
	WillTopic       string // retained last will (controller status)
	WillPayload     string
	AckTimeout      time.Duration
	KeepAlive       time.Duration
}

// MQTT is a Bus backed by an MQTT broker.
type MQTT struct {
	cfg     MQTTConfig
	client  mqtt.Client
	flow    *flow
	handler Handler
	log     zerolog.Logger

	mu   sync.Mutex // guards subs
	subs []string
}

// NewMQTT builds the client; call Connect to dial the broker.
func NewMQTT(cfg MQTTConfig, h Handler, logger zerolog.Logger) *MQTT {
	m := &MQTT{
		cfg:     cfg,
		flow:    newFlow(cfg.AckTimeout),
		handler: h,
		log:     logger.With().Str("component", "bus").Logger(),
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(10 * time.Second).
		SetDefaultPublishHandler(m.onMessage).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(m.onConnectionLost)
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 0, true)
	}
	m.client = mqtt.NewClient(opts)
	return m
}

// Connect dials the broker and waits until the first connection succeeds or ctx ends.
func (m *MQTT) Connect(ctx context.Context) error {
	tok := m.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", m.cfg.Broker, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects, giving in-flight publishes a short grace period.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

// Subscribe registers a topic filter. It is (re)applied on every connect.
func (m *MQTT) Subscribe(topic string) error {
	m.mu.Lock()
	m.subs = append(m.subs, topic)
	m.mu.Unlock()
	if !m.client.IsConnectionOpen() {
		return nil
	}
	tok := m.client.Subscribe(topic, 0, nil)
	if !tok.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: %w", topic, errors.New("timeout"))
	}
	return tok.Error()
}

// Publish sends payload on topic after the ack/cache steps in opts.
func (m *MQTT) Publish(topic string, payload any, opts Options) error {
	b, err := Encode(payload)
	if err != nil {
		return err
	}
	if !m.flow.before(b, opts) {
		m.log.Debug().Str("topic", topic).Dur("timeout", m.flow.timeout).Msg("display ack timed out")
	}
	tok := m.client.Publish(topic, 0, opts.Retain, b)
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			m.log.Error().Err(err).Str("topic", topic).Msg("publish failed")
		}
	}()
	return nil
}

// LastDisplay returns the last payload published with Cache.
func (m *MQTT) LastDisplay() []byte { return m.flow.lastDisplay() }

func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if msg.Topic() == m.cfg.AckTopic {
		m.flow.ack()
		return
	}
	m.handler(msg.Topic(), msg.Payload())
}

func (m *MQTT) onConnect(c mqtt.Client) {
	m.log.Info().Str("broker", m.cfg.Broker).Msg("connected to broker")
	m.mu.Lock()
	subs := append([]string(nil), m.subs...)
	m.mu.Unlock()
	for _, topic := range subs {
		topic := topic
		tok := c.Subscribe(topic, 0, nil)
		go func() {
			<-tok.Done()
			if err := tok.Error(); err != nil {
				m.log.Error().Err(err).Str("topic", topic).Msg("subscribe failed")
			}
		}()
	}
	if m.cfg.ConnectionTopic != "" {
		m.handler(m.cfg.ConnectionTopic, []byte("CONNECTED"))
	}
}

func (m *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	m.log.Warn().Err(err).Msg("broker connection lost")
	if m.cfg.ConnectionTopic != "" {
		m.handler(m.cfg.ConnectionTopic, []byte("DISCONNECTED"))
	}
}
