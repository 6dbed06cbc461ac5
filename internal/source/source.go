// Package source provides the line-oriented frame sources: a candump
// subprocess, any io.Reader, and a scripted fake for tests.
package source

import (
	"bufio"
	"io"
)

// Source produces one text record per call. ReadLine returns io.EOF at
// the end of the stream.
type Source interface {
	ReadLine() (string, error)
	Close() error
}

// Lines reads newline-terminated records from a reader.
type Lines struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewLines wraps r. If r is an io.Closer it is closed by Close.
func NewLines(r io.Reader) *Lines {
	l := &Lines{scanner: bufio.NewScanner(r)}
	if c, ok := r.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// ReadLine returns the next line without its terminator.
func (l *Lines) ReadLine() (string, error) {
	if l.scanner.Scan() {
		return l.scanner.Text(), nil
	}
	if err := l.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close closes the underlying reader if it has a Close method.
func (l *Lines) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
