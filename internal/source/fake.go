package source

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Fake.ReadLine after Close.
var ErrClosed = errors.New("source closed")

// Fake is a scripted source for tests. Lines are delivered in the order
// they were fed; ReadLine blocks while none are queued until End or
// Close is called.
type Fake struct {
	lines chan string

	mu     sync.Mutex
	ended  bool
	closed bool
	done   chan struct{}
}

// NewFake creates a Fake preloaded with lines. Call End to signal EOF
// after the last line.
func NewFake(lines ...string) *Fake {
	f := &Fake{
		lines: make(chan string, len(lines)+64),
		done:  make(chan struct{}),
	}
	for _, l := range lines {
		f.lines <- l
	}
	return f
}

// Feed queues another line.
func (f *Fake) Feed(line string) {
	f.lines <- line
}

// End marks the end of the stream; queued lines are still delivered.
func (f *Fake) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ended {
		f.ended = true
		close(f.lines)
	}
}

// ReadLine returns the next queued line or io.EOF after End.
func (f *Fake) ReadLine() (string, error) {
	select {
	case line, ok := <-f.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-f.done:
		return "", ErrClosed
	}
}

// Close unblocks pending reads.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
