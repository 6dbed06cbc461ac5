// Package pipeline wires frame decoding, windowed aggregation, derived
// metrics and link liveness together and drives the sink.
//
// All mutable state lives in Pipeline and is guarded by a single mutex, so
// the ingestion goroutine and the ticker goroutine never race on it.
package pipeline

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/sweeney/canbus-battery/internal/aggregate"
	"github.com/sweeney/canbus-battery/internal/decode"
	"github.com/sweeney/canbus-battery/internal/derive"
	"github.com/sweeney/canbus-battery/internal/frame"
	"github.com/sweeney/canbus-battery/internal/gpio"
	"github.com/sweeney/canbus-battery/internal/liveness"
	"github.com/sweeney/canbus-battery/internal/mapping"
	"github.com/sweeney/canbus-battery/internal/metrics"
	"github.com/sweeney/canbus-battery/internal/sink"
	"github.com/sweeney/canbus-battery/internal/status"
)

// DefaultConnectedPath is the path carrying the link flag.
const DefaultConnectedPath = "/Connected"

// Default loop intervals.
const (
	DefaultTick = time.Second
	DefaultPoll = time.Second
)

// Config holds the pipeline timings and output paths.
type Config struct {
	Window        time.Duration
	Tick          time.Duration
	Poll          time.Duration
	Liveness      liveness.Config
	ConnectedPath string
	Paths         derive.Paths
}

// DefaultConfig returns the default timings: 10s window, 1s tick, 5s
// connection timeout and 60s stall timeout.
func DefaultConfig() Config {
	return Config{
		Window: aggregate.DefaultDuration,
		Tick:   DefaultTick,
		Poll:   DefaultPoll,
		Liveness: liveness.Config{
			ConnectionTimeout: liveness.DefaultConnectionTimeout,
			StallTimeout:      liveness.DefaultStallTimeout,
		},
		ConnectedPath: DefaultConnectedPath,
		Paths:         derive.DefaultPaths(),
	}
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces time.Now. Tests use it to drive windows and timeouts.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracker mirrors pipeline state into a status tracker.
func WithTracker(t *status.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithIndicator drives a link LED.
func WithIndicator(ind gpio.Indicator) Option {
	return func(p *Pipeline) { p.indicator = ind }
}

// Pipeline owns the decode → aggregate → derive → publish state.
type Pipeline struct {
	cfg       Config
	table     *mapping.Table
	out       sink.Sink
	logger    *slog.Logger
	now       func() time.Time
	metrics   *metrics.Metrics
	tracker   *status.Tracker
	indicator gpio.Indicator
	calc      *derive.Calculator
	noisy     *rate.Limiter // malformed line warnings

	mu      sync.Mutex
	window  *aggregate.Window
	state   derive.State
	monitor *liveness.Monitor
	counts  status.Counts
}

// New creates a Pipeline. The window and the watchdog start at the
// pipeline clock's current time.
func New(cfg Config, table *mapping.Table, out sink.Sink, opts ...Option) *Pipeline {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.ConnectedPath == "" {
		cfg.ConnectedPath = DefaultConnectedPath
	}

	p := &Pipeline{
		cfg:       cfg,
		table:     table,
		out:       out,
		logger:    slog.Default(),
		now:       time.Now,
		indicator: gpio.Nop{},
		calc:      derive.New(cfg.Paths),
		noisy:     rate.NewLimiter(rate.Every(time.Second), 10),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New(prometheus.NewRegistry())
	}

	start := p.now()
	p.window = aggregate.NewWindow(cfg.Window, start, table.Precisions())
	p.monitor = liveness.NewMonitor(cfg.Liveness, start)
	return p
}

// Announce publishes the static identity values and the initial link flag.
// It is called once before ingestion starts.
func (p *Pipeline) Announce(identity []Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, id := range identity {
		p.publishLocked(id.Path, id.Value, now)
	}
	p.publishLocked(p.cfg.ConnectedPath, sink.Bool(false), now)
	p.syncLinkLocked(true)
}

// Identity is a static value published once at startup.
type Identity struct {
	Path  string
	Value sink.Value
}

// HandleLine decodes one candump record into the current window and
// flushes the window if its duration has elapsed.
func (p *Pipeline) HandleLine(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.decodeLocked(line, now)
	if p.window.Due(now) {
		p.flushLocked(now)
	}
	p.syncCountsLocked()
}

// Poll flushes the window if it is due. Ingestion calls it when no line
// arrived within the poll interval.
func (p *Pipeline) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.window.Due(now) {
		p.flushLocked(now)
		p.syncCountsLocked()
	}
}

// Tick runs the time-based liveness transitions. It returns
// liveness.ErrStalled when nothing has been published within the stall
// timeout; the caller must then stop the process.
func (p *Pipeline) Tick() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	disconnected, err := p.monitor.Tick(now)
	if err != nil {
		p.logger.Error("watchdog: nothing published",
			"since", p.monitor.LastPublish(),
			"timeout", p.cfg.Liveness.StallTimeout)
		return err
	}
	if disconnected {
		p.logger.Warn("CAN link lost", "last_frame", p.monitor.LastFrame())
		p.metrics.LinkTransitions.WithLabelValues(string(liveness.StateDisconnected)).Inc()
		p.publishLocked(p.cfg.ConnectedPath, sink.Bool(false), now)
		p.syncLinkLocked(true)
		p.syncCountsLocked()
	}
	return nil
}

// Connected reports the current link state.
func (p *Pipeline) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.monitor.Connected()
}

// State returns a copy of the rolling derived state.
func (p *Pipeline) State() derive.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Counts returns the activity counters.
func (p *Pipeline) Counts() status.Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}

func (p *Pipeline) decodeLocked(line string, now time.Time) {
	f, ok := frame.ParseLine(line)
	if !ok {
		p.counts.Malformed++
		p.metrics.Frames.WithLabelValues(metrics.FrameMalformed).Inc()
		if p.noisy.Allow() {
			p.logger.Warn("malformed candump line", "line", line, "total", p.counts.Malformed)
		}
		return
	}

	fields, ok := p.table.Lookup(f.ID)
	if !ok {
		p.counts.Unknown++
		p.metrics.Frames.WithLabelValues(metrics.FrameUnknown).Inc()
		p.logger.Debug("unmapped frame id", "id", f.ID)
		return
	}

	samples, errs := decode.Frame(f.ID, f.Data, fields)
	for _, err := range errs {
		p.counts.FieldErrors++
		p.metrics.FieldErrors.WithLabelValues(errorReason(err)).Inc()
		p.logger.Error("field decode failed", "id", err.FrameID, "path", err.Path, "error", err.Err)
	}
	for _, s := range samples {
		p.window.Add(s.Path, s.Value)
	}
	if len(samples) == 0 {
		return
	}

	p.counts.Frames++
	p.metrics.Frames.WithLabelValues(metrics.FrameDecoded).Inc()
	p.metrics.LastFrame.Set(float64(now.Unix()))
	changed := p.monitor.FrameSeen(now)
	if changed {
		p.logger.Info("CAN link up", "id", f.ID)
		p.metrics.LinkTransitions.WithLabelValues(string(liveness.StateConnected)).Inc()
		p.publishLocked(p.cfg.ConnectedPath, sink.Bool(true), now)
	}
	p.syncLinkLocked(changed)
}

func (p *Pipeline) flushLocked(now time.Time) {
	samples := p.window.Pending()
	flushed := p.window.Flush(now)
	p.counts.Flushes++
	p.logger.Debug("window flushed", "samples", samples, "paths", len(flushed))
	p.metrics.Flushes.Inc()
	p.metrics.FlushedPaths.Observe(float64(len(flushed)))

	paths := make([]string, 0, len(flushed))
	for path := range flushed {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		p.logger.Debug("averaged value", "path", path, "value", flushed[path])
		p.publishLocked(path, sink.Number(flushed[path]), now)
	}
	for _, o := range p.calc.Apply(flushed, &p.state) {
		p.logger.Debug("derived value", "path", o.Path, "value", o.Value)
		p.publishLocked(o.Path, sink.Number(o.Value), now)
	}
}

// publishLocked writes one value. Only successful writes feed the watchdog.
func (p *Pipeline) publishLocked(path string, v sink.Value, now time.Time) {
	if err := p.out.Publish(path, v); err != nil {
		p.counts.PublishErrors++
		p.metrics.Publishes.WithLabelValues(metrics.ResultError).Inc()
		p.logger.Warn("publish failed", "path", path, "error", err)
		return
	}
	p.counts.Published++
	p.metrics.Publishes.WithLabelValues(metrics.ResultOK).Inc()
	p.metrics.LastPublish.Set(float64(now.Unix()))
	p.monitor.Published(now)
	if p.tracker != nil {
		p.tracker.RecordValue(path, v, now)
	}
}

// syncLinkLocked mirrors the link state to the tracker, and on a state
// change also to the gauge and the LED.
func (p *Pipeline) syncLinkLocked(changed bool) {
	connected := p.monitor.Connected()
	if changed {
		if connected {
			p.metrics.Connected.Set(1)
		} else {
			p.metrics.Connected.Set(0)
		}
		if err := p.indicator.Set(connected); err != nil {
			p.logger.Warn("indicator update failed", "error", err)
		}
	}
	if p.tracker != nil {
		p.tracker.SetLink(connected, p.monitor.LastFrame())
	}
}

func (p *Pipeline) syncCountsLocked() {
	if p.tracker != nil {
		p.tracker.SetCounts(p.counts)
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, decode.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, decode.ErrInvalidEncoding):
		return "invalid_encoding"
	}
	return "other"
}
