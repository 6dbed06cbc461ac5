package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// EntryError describes a mapping entry that was skipped during parsing.
type EntryError struct {
	FrameID string
	Path    string
	Err     error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("frame %s path %s: %v", e.FrameID, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Errors returned (wrapped in an EntryError) for rejected entries.
var (
	ErrMissingBytes = errors.New("missing required key \"bytes\"")
	ErrMissingType  = errors.New("missing required key \"type\"")
	ErrMissingBit   = errors.New("type bool requires \"bit\"")
)

type rawEntry struct {
	Bytes      []int    `json:"bytes"`
	Type       *string  `json:"type"`
	Scale      *float64 `json:"scale"`
	ByteOrder  string   `json:"byte_order"`
	Bit        *int     `json:"bit"`
	TrueValue  *float64 `json:"true_value"`
	FalseValue *float64 `json:"false_value"`
	Precision  *int     `json:"precision"`
}

// Load reads a mapping file. The file may contain // and /* */ comments
// and trailing commas.
func Load(path string) (*Table, []*EntryError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	table, skipped, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, skipped, nil
}

// Parse decodes a mapping document. Structural JSON errors are fatal;
// individual entries that fail validation are skipped and returned as
// EntryErrors so the caller can log them.
func Parse(data []byte) (*Table, []*EntryError, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))

	frames := make(map[string][]FieldMapping)
	var skipped []*EntryError

	err := decodeObject(dec, func(frameID string) error {
		fields := frames[frameID]
		err := decodeObject(dec, func(path string) error {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return err
			}
			fm, err := buildField(path, raw)
			if err != nil {
				skipped = append(skipped, &EntryError{FrameID: frameID, Path: path, Err: err})
				return nil
			}
			fields = append(fields, fm)
			return nil
		})
		if err != nil {
			return fmt.Errorf("frame %s: %w", frameID, err)
		}
		frames[frameID] = fields
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("parsing mapping: %w", err)
	}

	return &Table{frames: frames}, skipped, nil
}

// decodeObject walks a JSON object key by key so declaration order is kept.
// fn must consume exactly one value from dec.
func decodeObject(dec *json.Decoder, fn func(key string) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func buildField(path string, data []byte) (FieldMapping, error) {
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return FieldMapping{}, err
	}

	if len(raw.Bytes) == 0 {
		return FieldMapping{}, ErrMissingBytes
	}
	for _, idx := range raw.Bytes {
		if idx < 0 {
			return FieldMapping{}, fmt.Errorf("negative byte index %d", idx)
		}
	}
	if raw.Type == nil {
		return FieldMapping{}, ErrMissingType
	}
	vt, err := ParseValueType(*raw.Type)
	if err != nil {
		return FieldMapping{}, err
	}

	fm := FieldMapping{
		Path:       path,
		Bytes:      raw.Bytes,
		Type:       vt,
		Scale:      DefaultScale,
		TrueValue:  DefaultTrueValue,
		FalseValue: DefaultFalseValue,
	}
	if raw.Scale != nil {
		fm.Scale = *raw.Scale
	}
	switch raw.ByteOrder {
	case "":
	case "reversed":
		fm.Order = Reversed
	default:
		return FieldMapping{}, fmt.Errorf("unknown byte_order %q", raw.ByteOrder)
	}
	if vt == Bool {
		if raw.Bit == nil {
			return FieldMapping{}, ErrMissingBit
		}
		if *raw.Bit < 0 || *raw.Bit > 63 {
			return FieldMapping{}, fmt.Errorf("bit %d out of range", *raw.Bit)
		}
		fm.Bit = *raw.Bit
	}
	if raw.TrueValue != nil {
		fm.TrueValue = *raw.TrueValue
	}
	if raw.FalseValue != nil {
		fm.FalseValue = *raw.FalseValue
	}
	if raw.Precision != nil {
		if *raw.Precision < 0 {
			return FieldMapping{}, fmt.Errorf("negative precision %d", *raw.Precision)
		}
		p := *raw.Precision
		fm.Precision = &p
	}
	return fm, nil
}
