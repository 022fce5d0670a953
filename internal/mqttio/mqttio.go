// Package mqttio implements the MQTT endpoint worker (connect, read, write
// per spec.md §4.3), wrapping github.com/eclipse/paho.mqtt.golang. Grounded
// on EdgxCloud-EdgeFlow's mqtt_in.go/mqtt_out.go client setup, restructured
// into a long-lived worker with its own publish/subscribe ring buffers
// instead of a per-message connect.
package mqttio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hapcan/gw-server/internal/logging"
	"github.com/hapcan/gw-server/internal/metrics"
	"github.com/hapcan/gw-server/internal/ringbuf"
)

const (
	pubQoS          = 1
	subQoS          = 0
	keepAlive       = 30 * time.Second
	connectTimeout  = 10 * time.Second
	ackRetryCeiling = 200
	ackRetryDelay   = time.Millisecond

	pubBufferCapacity = 600
	subBufferCapacity = 600
)

// ErrPublishTimeout is returned when the broker does not ack a QOS1 publish
// within the retry ceiling (spec.md §7's "configurable retry ceiling
// (default: 200 retries × 1 ms)").
var ErrPublishTimeout = errors.New("mqttio: publish not acknowledged")

// Message is one (topic, payload) pair moving through the worker's ring
// buffers in either direction.
type Message struct {
	Topic   string
	Payload []byte
}

// Config carries the MQTT connection parameters sourced from the gateway's
// configuration snapshot (spec.md §6's mqttBroker/mqttClientID fields).
type Config struct {
	Broker   string
	ClientID string
}

// Worker owns one MQTT client connection and its publish/subscribe ring
// buffers. Connect/read/write responsibilities mirror the three-worker
// shape used by every other endpoint in this gateway (spec.md §4.3): here
// "read" is the paho on-message callback pushing into Sub, and "write" is
// DrainPublish pulling from Pub.
type Worker struct {
	cfg Config

	mu        sync.Mutex
	client    mqtt.Client
	connected bool

	Pub *ringbuf.Buffer[Message] // outbound: gateway -> broker
	Sub *ringbuf.Buffer[Message] // inbound: broker -> gateway

	subscriptions []string
}

// NewWorker builds a worker with default-sized pub/sub ring buffers; it
// does not connect until Connect is called.
func NewWorker(cfg Config) *Worker {
	return &Worker{
		cfg: cfg,
		Pub: ringbuf.New[Message](pubBufferCapacity),
		Sub: ringbuf.New[Message](subBufferCapacity),
	}
}

// Connect dials the broker with clean session, 30s keepalive, and a 10s
// connect timeout (spec.md §6's quality-of-service table), re-subscribing
// to any topics previously registered via Subscribe.
func (w *Worker) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(w.cfg.Broker).
		SetClientID(w.cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(false). // the connect worker owns reconnection, not paho
		SetOnConnectHandler(func(mqtt.Client) {
			w.mu.Lock()
			w.connected = true
			topics := append([]string(nil), w.subscriptions...)
			w.mu.Unlock()
			for _, t := range topics {
				w.subscribeNow(t)
			}
			logging.L().Info("mqtt connected", "component", "mqttio", "broker", w.cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			w.mu.Lock()
			w.connected = false
			w.mu.Unlock()
			logging.L().Warn("mqtt connection lost", "component", "mqttio", "error", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqttio: connect to %s timed out", w.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttio: connect to %s: %w", w.cfg.Broker, err)
	}

	w.mu.Lock()
	w.client = client
	w.connected = true
	w.mu.Unlock()
	return nil
}

// SetConfig installs new broker/clientID parameters, taking effect on the
// next Connect (callers reconnecting on a config reload must Close first).
func (w *Worker) SetConfig(cfg Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg
}

// Connected reports the last known connection state.
func (w *Worker) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// Close disconnects cleanly, releasing the underlying client.
func (w *Worker) Close() {
	w.mu.Lock()
	client := w.client
	w.client = nil
	w.connected = false
	w.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}

// Subscribe registers topic for delivery into Sub at QOS 0, recording it so
// a future reconnect resubscribes automatically.
func (w *Worker) Subscribe(topic string) error {
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, topic)
	w.mu.Unlock()
	return w.subscribeNow(topic)
}

func (w *Worker) subscribeNow(topic string) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return nil // Connect's OnConnectHandler will retry once connected
	}
	token := client.Subscribe(topic, subQoS, func(_ mqtt.Client, msg mqtt.Message) {
		w.Sub.Push(Message{Topic: msg.Topic(), Payload: msg.Payload()})
	})
	token.Wait()
	return token.Error()
}

// Publish enqueues a QOS1 publish and waits for the broker ack, spinning at
// 1ms intervals up to the retry ceiling before giving up (spec.md §7).
func (w *Worker) Publish(topic string, payload []byte) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return errors.New("mqttio: not connected")
	}
	token := client.Publish(topic, pubQoS, false, payload)
	for i := 0; i < ackRetryCeiling; i++ {
		if token.WaitTimeout(ackRetryDelay) {
			metrics.IncMQTTPublished()
			return token.Error()
		}
	}
	metrics.IncMQTTPublishTimeout()
	return ErrPublishTimeout
}

// DrainPublish pops every queued outbound message and publishes it,
// mirroring the write worker's "drain until empty or send fails" contract
// (spec.md §4.3). It stops at the first failure, leaving remaining
// messages queued for the next drive.
func (w *Worker) DrainPublish() error {
	for {
		item, err := w.Pub.Pop()
		if err == ringbuf.ErrNoData {
			return nil
		}
		if pubErr := w.Publish(item.Value.Topic, item.Value.Payload); pubErr != nil {
			return pubErr
		}
	}
}
