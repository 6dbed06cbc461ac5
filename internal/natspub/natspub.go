// Package natspub mirrors published values onto NATS subjects.
package natspub

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sweeney/canbus-battery/internal/sink"
)

// DefaultSubjectPrefix is prepended to every subject.
const DefaultSubjectPrefix = "battery.canbus"

// Subject converts a value path into a NATS subject.
// Subject("battery.canbus", "/Dc/0/Voltage") == "battery.canbus.Dc.0.Voltage".
func Subject(prefix, path string) string {
	tokens := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	subject := strings.Join(tokens, ".")
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return subject
	}
	if subject == "" {
		return prefix
	}
	return prefix + "." + subject
}

// Publisher writes values to NATS core subjects.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger = logger.With("component", "nats")

	conn, err := nats.Connect(url,
		nats.Name("canbus-battery"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	return &Publisher{conn: conn, prefix: prefix, logger: logger, now: time.Now}, nil
}

// Publish sends the value to its subject.
func (p *Publisher) Publish(path string, value sink.Value) error {
	payload, err := sink.FormatPayload(value, p.now())
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	subject := Subject(p.prefix, path)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.FlushTimeout(time.Second); err != nil {
		p.logger.Warn("flush before close failed", "error", err)
	}
	p.conn.Close()
	return nil
}
