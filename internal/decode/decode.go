// Package decode turns payload byte tokens into calibrated values.
package decode

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sweeney/canbus-battery/internal/mapping"
)

var (
	// ErrInsufficientData means a byte index lies beyond the payload.
	ErrInsufficientData = errors.New("insufficient payload bytes")

	// ErrInvalidEncoding means the selected bytes are not valid hex.
	ErrInvalidEncoding = errors.New("invalid hex encoding")
)

// Extract decodes one field from a frame payload. It has no side effects.
func Extract(data []string, m mapping.FieldMapping) (float64, error) {
	selected := make([]string, len(m.Bytes))
	for i, idx := range m.Bytes {
		if idx < 0 || idx >= len(data) {
			return 0, fmt.Errorf("%w: index %d, payload has %d bytes", ErrInsufficientData, idx, len(data))
		}
		selected[i] = data[idx]
	}
	if m.Order == mapping.Reversed {
		slices.Reverse(selected)
	}

	raw, err := assemble(selected)
	if err != nil {
		return 0, err
	}

	var v float64
	switch m.Type {
	case mapping.Bool:
		if (raw>>uint(m.Bit))&1 == 1 {
			return m.TrueValue, nil
		}
		return m.FalseValue, nil
	case mapping.Signed8:
		v = float64(int8(uint8(raw)))
	case mapping.Signed16:
		v = float64(int16(uint16(raw)))
	case mapping.Unsigned:
		v = float64(raw)
	default:
		return 0, fmt.Errorf("unsupported value type %v", m.Type)
	}
	return v * m.Scale, nil
}

// assemble concatenates hex byte tokens into one big-endian integer.
func assemble(tokens []string) (uint64, error) {
	hex := strings.Join(tokens, "")
	raw, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidEncoding, hex)
	}
	return raw, nil
}

// Sample is one successfully decoded field value.
type Sample struct {
	Path  string
	Value float64
}

// FieldError records a field that could not be decoded from a frame.
type FieldError struct {
	FrameID string
	Path    string
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("parsing %s from frame %s: %v", e.Path, e.FrameID, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Frame decodes every field of a frame. A failing field never prevents
// its siblings from being decoded.
func Frame(id string, data []string, fields []mapping.FieldMapping) ([]Sample, []*FieldError) {
	samples := make([]Sample, 0, len(fields))
	var errs []*FieldError
	for _, f := range fields {
		v, err := Extract(data, f)
		if err != nil {
			errs = append(errs, &FieldError{FrameID: id, Path: f.Path, Err: err})
			continue
		}
		samples = append(samples, Sample{Path: f.Path, Value: v})
	}
	return samples, errs
}
