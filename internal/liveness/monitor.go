// Package liveness tracks whether frames are still arriving and whether
// anything has been published recently.
// Time is always injected; nothing here reads the clock.
package liveness

import (
	"errors"
	"time"
)

// Default timeouts.
const (
	DefaultConnectionTimeout = 5 * time.Second
	DefaultStallTimeout      = 60 * time.Second
)

// ErrStalled is returned by Tick when nothing has been published within
// the stall timeout. The process is expected to exit so a supervisor can
// restart it.
var ErrStalled = errors.New("liveness: no value published within stall timeout")

// State is the link state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnected    State = "CONNECTED"
)

// Config holds the monitor timeouts.
type Config struct {
	ConnectionTimeout time.Duration
	StallTimeout      time.Duration
}

// Monitor is the connected/disconnected state machine plus the stall
// watchdog. Not safe for concurrent use.
type Monitor struct {
	cfg         Config
	state       State
	lastFrame   time.Time
	lastPublish time.Time
}

// NewMonitor returns a disconnected monitor whose publish clock starts at start.
func NewMonitor(cfg Config, start time.Time) *Monitor {
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = DefaultConnectionTimeout
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = DefaultStallTimeout
	}
	return &Monitor{
		cfg:         cfg,
		state:       StateDisconnected,
		lastPublish: start,
	}
}

// FrameSeen records a valid mapped frame. It returns true when this frame
// moved the monitor from disconnected to connected.
func (m *Monitor) FrameSeen(now time.Time) bool {
	m.lastFrame = now
	if m.state == StateDisconnected {
		m.state = StateConnected
		return true
	}
	return false
}

// Published records a successful write to the sink.
func (m *Monitor) Published(now time.Time) {
	m.lastPublish = now
}

// Tick evaluates the time-based transitions. disconnected is true when the
// link has just gone quiet. err is ErrStalled when the watchdog trips;
// the stall check uses the publish time from before this tick.
func (m *Monitor) Tick(now time.Time) (disconnected bool, err error) {
	if m.state == StateConnected && now.Sub(m.lastFrame) > m.cfg.ConnectionTimeout {
		m.state = StateDisconnected
		disconnected = true
	}
	if now.Sub(m.lastPublish) > m.cfg.StallTimeout {
		return disconnected, ErrStalled
	}
	return disconnected, nil
}

// State returns the current link state.
func (m *Monitor) State() State {
	return m.state
}

// Connected reports whether the link is up.
func (m *Monitor) Connected() bool {
	return m.state == StateConnected
}

// LastFrame returns the time of the last valid frame, zero if none.
func (m *Monitor) LastFrame() time.Time {
	return m.lastFrame
}

// LastPublish returns the time of the last successful publish.
func (m *Monitor) LastPublish() time.Time {
	return m.lastPublish
}
