// Package frame parses candump text output.
//
// A record looks like:
//
//	can1  18FF50E5   [8]  10 27 00 64 00 00 00 00
//
// The bracketed length marker is optional.
package frame

import "strings"

// Frame is one decoded candump record.
type Frame struct {
	Interface string
	ID        string
	Data      []string
}

// minTokens is interface, id and at least one data token.
const minTokens = 3

// ParseLine splits a candump line into its frame id and payload byte
// tokens. It returns false if the line cannot hold an id and a byte.
func ParseLine(line string) (Frame, bool) {
	parts := strings.Fields(line)
	if len(parts) < minTokens {
		return Frame{}, false
	}

	data := parts[2:]
	if strings.HasPrefix(data[0], "[") {
		data = data[1:]
	}
	if len(data) == 0 {
		return Frame{}, false
	}

	return Frame{
		Interface: parts[0],
		ID:        parts[1],
		Data:      data,
	}, true
}
