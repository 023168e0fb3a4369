// Package transport binds the relay core to an MQTT broker with paho.
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("mqtt client is not connected")

// Handler receives the payload of a status message together with the relay it was
// subscribed for.
type Handler = func(key models.RelayKey, payload string)

type Config struct {
	Broker   string
	User     string
	Password string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

// MQTT implements the relay messenger on top of a paho client. It keeps no
// subscription table of its own: the caller replays its subscriptions from the
// on-connect hook.
type MQTT struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	log     *logger.Logger

	mu        sync.Mutex
	onConnect func()
}

// New builds the client. Connect must be called before use.
func New(cfg Config, log *logger.Logger) *MQTT {
	m := &MQTT{
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		log:     logger.OrNop(log).Named("mqtt"),
	}
	if m.timeout <= 0 {
		m.timeout = 10 * time.Second
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "tasmota-relayd"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warnw("mqtt_connection_lost", "err", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.log.Infow("mqtt_connected", "broker", cfg.Broker)
		m.connected()
	})

	m.client = mqtt.NewClient(opts)
	return m
}

// newWithClient is used by tests to inject a fake paho client.
func newWithClient(c mqtt.Client, log *logger.Logger) *MQTT {
	return &MQTT{
		client:  c,
		timeout: time.Second,
		log:     logger.OrNop(log).Named("mqtt"),
	}
}

// Connect dials the broker and waits up to the configured timeout for the first session.
func (m *MQTT) Connect() error {
	token := m.client.Connect()
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt connect: timed out after %s", m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close disconnects, allowing in-flight work 250ms to complete.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

// SetOnConnect registers fn to run after every (re)connection.
func (m *MQTT) SetOnConnect(fn func()) {
	m.mu.Lock()
	m.onConnect = fn
	m.mu.Unlock()
}

func (m *MQTT) Publish(topic, payload string) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: %w", topic, ErrNotConnected)
	}
	token := m.client.Publish(topic, m.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	m.log.Debugw("mqtt_publish", "topic", topic, "payload", payload)
	return nil
}

// Subscribe routes messages on topic to h, tagged with key.
func (m *MQTT) Subscribe(topic string, key models.RelayKey, h Handler) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("subscribe %s: %w", topic, ErrNotConnected)
	}
	token := m.client.Subscribe(topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		h(key, string(msg.Payload()))
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Unsubscribe(topic string) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("unsubscribe %s: %w", topic, ErrNotConnected)
	}
	token := m.client.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

// connected runs the on-connect hook. paho calls it on its own goroutine, so the
// hook may block on further client calls.
func (m *MQTT) connected() {
	m.mu.Lock()
	fn := m.onConnect
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}
