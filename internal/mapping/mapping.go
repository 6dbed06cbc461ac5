// Package mapping holds the declarative frame decode schema.
// A Table is built once at startup and never mutated afterwards.
package mapping

import (
	"fmt"
	"sort"
)

// ValueType selects how the assembled raw integer is interpreted.
type ValueType int

const (
	Unsigned ValueType = iota
	Signed8
	Signed16
	Bool
)

func (t ValueType) String() string {
	switch t {
	case Unsigned:
		return "U"
	case Signed8:
		return "S8"
	case Signed16:
		return "S16"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// ParseValueType maps the mapping file's type tag onto a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "U":
		return Unsigned, nil
	case "S8":
		return Signed8, nil
	case "S16":
		return Signed16, nil
	case "bool":
		return Bool, nil
	}
	return 0, fmt.Errorf("unknown type %q", s)
}

// ByteOrder controls whether the selected bytes are reversed before assembly.
type ByteOrder int

const (
	Forward ByteOrder = iota
	Reversed
)

func (o ByteOrder) String() string {
	if o == Reversed {
		return "reversed"
	}
	return "forward"
}

// Default values applied when a mapping entry omits them.
const (
	DefaultScale      = 1.0
	DefaultTrueValue  = 2.0
	DefaultFalseValue = 0.0
)

// FieldMapping is one decode rule: which payload bytes make up a named
// output value and how to turn them into a number.
type FieldMapping struct {
	Path       string
	Bytes      []int
	Type       ValueType
	Scale      float64
	Order      ByteOrder
	Bit        int // only meaningful when Type == Bool
	TrueValue  float64
	FalseValue float64
	Precision  *int
}

// Table maps a frame id (case-sensitive hex string) to its fields, in
// the order they were declared.
type Table struct {
	frames map[string][]FieldMapping
}

// NewTable builds a Table from already validated mappings. The slices are
// copied so later changes by the caller are not observed.
func NewTable(frames map[string][]FieldMapping) *Table {
	t := &Table{frames: make(map[string][]FieldMapping, len(frames))}
	for id, fields := range frames {
		t.frames[id] = append([]FieldMapping(nil), fields...)
	}
	return t
}

// Lookup returns the fields registered for a frame id.
func (t *Table) Lookup(id string) ([]FieldMapping, bool) {
	fields, ok := t.frames[id]
	return fields, ok
}

// IDs returns the frame ids in sorted order.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.frames))
	for id := range t.frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of frame ids.
func (t *Table) Len() int {
	return len(t.frames)
}

// Precisions returns the rounding precision of every path that declares one.
func (t *Table) Precisions() map[string]int {
	out := make(map[string]int)
	for _, fields := range t.frames {
		for _, f := range fields {
			if f.Precision != nil {
				out[f.Path] = *f.Precision
			}
		}
	}
	return out
}

// Paths returns every distinct output path in sorted order.
func (t *Table) Paths() []string {
	seen := make(map[string]struct{})
	for _, fields := range t.frames {
		for _, f := range fields {
			seen[f.Path] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
