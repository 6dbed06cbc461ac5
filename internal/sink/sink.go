// Package sink defines the keyed write interface values are published to.
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind is the type of value carried by a Value.
type Kind int

const (
	KindNumber Kind = iota
	KindBool
	KindString
)

// Value is a number, bool or string written to a path.
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  string
}

// Number wraps a numeric value.
func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

// Bool wraps a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// String wraps a text value. Only used for static identity paths.
func String(v string) Value { return Value{kind: KindString, str: v} }

// ValueOf converts a decoded YAML/JSON scalar into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case bool:
		return Bool(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", v)
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric value; bools map to 0/1.
func (v Value) Float() float64 {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNumber:
		return v.num
	}
	return 0
}

// Bool returns the boolean value; numbers are true when non-zero.
func (v Value) Bool() bool {
	if v.kind == KindBool {
		return v.b
	}
	return v.kind == KindNumber && v.num != 0
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.str
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

// MarshalJSON encodes the value as a bare JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.str)
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON decodes a bare JSON number, bool or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Sink accepts value writes. Repeated identical writes are harmless.
type Sink interface {
	// Publish writes value to path. An error means the value was not
	// written and must not count as activity.
	Publish(path string, value Value) error

	// Close releases the sink's connection.
	Close() error
}

// Payload is the JSON document written for a single value.
type Payload struct {
	Value     Value  `json:"value"`
	Timestamp string `json:"timestamp"`
}

// FormatPayload creates the JSON payload for a value written at t.
func FormatPayload(v Value, t time.Time) ([]byte, error) {
	return json.Marshal(Payload{
		Value:     v,
		Timestamp: t.UTC().Format(time.RFC3339),
	})
}

// Multi fans every write out to several sinks. A write succeeds if at
// least one sink accepted it.
type Multi []Sink

// Publish writes to every sink and joins the errors.
func (m Multi) Publish(path string, value Value) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(path, value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(m) > 0 && len(errs) == len(m) {
		return errors.Join(errs...)
	}
	return nil
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
