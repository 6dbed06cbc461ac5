// Package status provides a thread-safe status tracker for the canbus-battery daemon.
// It is read by the HTTP handlers and written by the pipeline.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/canbus-battery/internal/sink"
)

// Config contains daemon configuration for display.
type Config struct {
	Interface         string
	MappingFile       string
	Frames            int // mapped frame ids
	Paths             int // mapped value paths
	WindowMs          int64
	TickMs            int64
	ConnectionTimeout int64 // ms
	StallTimeout      int64 // ms
	Broker            string
	NATS              string
	HTTPAddr          string
}

// Counts tracks pipeline activity since startup.
type Counts struct {
	Frames        int
	Unknown       int
	Malformed     int
	FieldErrors   int
	Flushes       int
	Published     int
	PublishErrors int
}

// PathValue is the latest value written to a path.
type PathValue struct {
	Path    string
	Value   sink.Value
	Updated time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Connected     bool
	LastFrame     time.Time
	LastPublish   time.Time
	Counts        Counts
	Values        []PathValue // sorted by path
	StartTime     time.Time
	Now           time.Time
	SinkConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	values map[string]PathValue
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:   startTime,
			LastPublish: startTime,
			Config:      cfg,
		},
		values: make(map[string]PathValue),
		now:    time.Now,
	}
}

// SetLink records the CAN link state and the last frame time.
func (t *Tracker) SetLink(connected bool, lastFrame time.Time) {
	t.mu.Lock()
	t.snap.Connected = connected
	t.snap.LastFrame = lastFrame
	t.mu.Unlock()
}

// SetCounts replaces the activity counters.
func (t *Tracker) SetCounts(c Counts) {
	t.mu.Lock()
	t.snap.Counts = c
	t.mu.Unlock()
}

// RecordValue stores the latest value written to path.
func (t *Tracker) RecordValue(path string, v sink.Value, at time.Time) {
	t.mu.Lock()
	t.values[path] = PathValue{Path: path, Value: v, Updated: at}
	t.snap.LastPublish = at
	t.mu.Unlock()
}

// SetSinkConnected sets the sink connection status.
func (t *Tracker) SetSinkConnected(connected bool) {
	t.mu.Lock()
	t.snap.SinkConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Values = make([]PathValue, 0, len(t.values))
	for _, v := range t.values {
		s.Values = append(s.Values, v)
	}
	t.mu.RUnlock()

	sort.Slice(s.Values, func(i, j int) bool { return s.Values[i].Path < s.Values[j].Path })
	s.Now = t.now()
	return s
}
