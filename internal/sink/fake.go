package sink

import "sync"

// Write is one recorded Publish call.
type Write struct {
	Path  string
	Value Value
}

// Fake records published values for test assertions.
type Fake struct {
	mu sync.Mutex

	writes []Write

	// PublishError, if set, will be returned by Publish.
	PublishError error

	closed bool
}

// NewFake creates a Fake sink.
func NewFake() *Fake {
	return &Fake{}
}

// Publish records the write.
func (f *Fake) Publish(path string, value Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.writes = append(f.writes, Write{Path: path, Value: value})
	return nil
}

// SetError makes subsequent Publish calls fail with err (nil to clear).
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	f.PublishError = err
	f.mu.Unlock()
}

// Close marks the sink as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Writes returns a copy of every recorded write in order.
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Last returns the most recent value written to path.
func (f *Fake) Last(path string) (Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].Path == path {
			return f.writes[i].Value, true
		}
	}
	return Value{}, false
}

// Count returns how many times path was written.
func (f *Fake) Count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		if w.Path == path {
			n++
		}
	}
	return n
}

// Reset clears recorded writes and errors.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.writes = nil
	f.PublishError = nil
	f.closed = false
	f.mu.Unlock()
}
