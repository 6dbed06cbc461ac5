package source

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestLinesReadsUntilEOF(t *testing.T) {
	l := NewLines(strings.NewReader("can1 351 [2] 01 02\ncan1 355 [1] 50\n"))

	for _, want := range []string{"can1 351 [2] 01 02", "can1 355 [1] 50"} {
		got, err := l.ReadLine()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if _, err := l.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestLinesClosesUnderlyingReader(t *testing.T) {
	r := &closeTracker{Reader: strings.NewReader("")}
	l := NewLines(r)
	l.Close()
	if !r.closed {
		t.Error("underlying reader should be closed")
	}
}

func TestFakeDeliversInOrderThenEOF(t *testing.T) {
	f := NewFake("a", "b")
	f.Feed("c")
	f.End()

	for _, want := range []string{"a", "b", "c"} {
		got, err := f.ReadLine()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if _, err := f.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFakeCloseUnblocksRead(t *testing.T) {
	f := NewFake()
	errc := make(chan error, 1)
	go func() {
		_, err := f.ReadLine()
		errc <- err
	}()

	f.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadLine did not return after Close")
	}
	if !f.Closed() {
		t.Error("Closed should report true")
	}
}

func TestFakeEndTwiceIsSafe(t *testing.T) {
	f := NewFake()
	f.End()
	f.End()
	f.Close()
	f.Close()
}
