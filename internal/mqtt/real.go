package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/canbus-battery/internal/sink"
)

// DefaultBufferSize is the number of distinct topics held while offline.
const DefaultBufferSize = 256

// DefaultPublishTimeout bounds the wait for a single publish to be acknowledged.
const DefaultPublishTimeout = 2 * time.Second

var (
	// ErrNotConnected is returned by Publish while the broker is unreachable.
	// The value is kept and sent after reconnection.
	ErrNotConnected = errors.New("mqtt: not connected, value buffered")

	// ErrNotAcknowledged is returned while an earlier publish is still
	// waiting for the broker. The value is kept and sent once the broker
	// acknowledges again.
	ErrNotAcknowledged = errors.New("mqtt: broker not acknowledging, value buffered")
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string // empty = "canbus-battery-<random>"
	TopicPrefix    string
	QoS            byte
	Retained       bool
	BufferSize     int
	PublishTimeout time.Duration // wait for an acknowledgement before buffering
	Logger         *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client   paho.Client
	prefix   string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending *pendingBuffer
	unacked paho.Token // publish that outlived timeout, nil when none
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "canbus-battery-" + uuid.NewString()[:8]
	}
	p := newPublisher(&o)

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(StatusTopic(o.TopicPrefix), string(FormatStatusPayload(false, time.Time{})), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	// With connect retry the token only completes once a connection is
	// made; until then values are buffered.
	if !token.WaitTimeout(10 * time.Second) {
		p.logger.Warn("broker not reachable, retrying in background", "broker", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// newPublisher fills in defaults on o and builds a publisher without a client.
func newPublisher(o *Options) *RealPublisher {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}

	p := &RealPublisher{
		prefix:   o.TopicPrefix,
		qos:      o.QoS,
		retained: o.Retained,
		timeout:  o.PublishTimeout,
		logger:   o.Logger.With("component", "mqtt"),
		now:      time.Now,
	}
	p.pending = newPendingBuffer(o.BufferSize, p.logger)
	return p
}

// onConnect announces the publisher and replays values buffered while offline.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.logger.Info("connected to broker")
	c.Publish(StatusTopic(p.prefix), 1, true, FormatStatusPayload(true, p.now()))

	p.mu.Lock()
	p.unacked = nil
	msgs := p.pending.drain()
	p.mu.Unlock()

	if len(msgs) > 0 {
		p.logger.Info("replaying buffered values", "count", len(msgs))
	}
	for _, m := range msgs {
		c.Publish(m.topic, p.qos, p.retained, m.payload)
	}
}

// Publish sends a value to its topic.
func (p *RealPublisher) Publish(path string, value sink.Value) error {
	payload, err := sink.FormatPayload(value, p.now())
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	topic := Topic(p.prefix, path)

	if !p.client.IsConnectionOpen() {
		p.buffer(topic, payload)
		return ErrNotConnected
	}
	if p.awaitingAck() {
		p.buffer(topic, payload)
		return ErrNotAcknowledged
	}

	token := p.client.Publish(topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		p.mu.Lock()
		p.unacked = token
		p.pending.put(topic, payload)
		p.mu.Unlock()
		p.logger.Warn("broker not acknowledging, buffering values", "topic", topic, "timeout", p.timeout)
		return fmt.Errorf("publish %s: %w", topic, ErrNotAcknowledged)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) buffer(topic string, payload []byte) {
	p.mu.Lock()
	p.pending.put(topic, payload)
	p.mu.Unlock()
}

// awaitingAck reports whether a timed-out publish is still outstanding.
// When it has completed, the values buffered meanwhile are resent.
func (p *RealPublisher) awaitingAck() bool {
	p.mu.Lock()
	if p.unacked == nil {
		p.mu.Unlock()
		return false
	}
	select {
	case <-p.unacked.Done():
	default:
		p.mu.Unlock()
		return true
	}
	p.unacked = nil
	msgs := p.pending.drain()
	p.mu.Unlock()

	p.logger.Info("broker acknowledging again", "replayed", len(msgs))
	for _, m := range msgs {
		p.client.Publish(m.topic, p.qos, p.retained, m.payload)
	}
	return false
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close marks the publisher offline and disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client.IsConnectionOpen() {
		token := p.client.Publish(StatusTopic(p.prefix), 1, true, FormatStatusPayload(false, p.now()))
		token.WaitTimeout(time.Second)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
