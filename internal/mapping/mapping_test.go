package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMapping = `{
	// pack voltage and current
	"351": {
		"/Dc/0/Voltage": {"bytes": [0, 1], "type": "U", "scale": 0.01, "precision": 2},
		"/Dc/0/Current": {"bytes": [2, 3], "type": "S16", "scale": 0.1, "byte_order": "reversed"},
	},
	"18FF50E5": {
		"/Soc": {"bytes": [0], "type": "U"},
		"/Alarms/HighVoltage": {"bytes": [1], "type": "bool", "bit": 3},
		"/Alarms/LowVoltage": {"bytes": [1], "type": "bool", "bit": 4, "true_value": 1, "false_value": -1},
		"/Broken/NoBytes": {"type": "U"},
		"/Broken/NoType": {"bytes": [2]},
		"/Broken/BoolNoBit": {"bytes": [2], "type": "bool"},
		"/Broken/Unknown": {"bytes": [2], "type": "F32"}
	}
}`

func TestParseFields(t *testing.T) {
	table, skipped, err := Parse([]byte(sampleMapping))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"18FF50E5", "351"}, table.IDs())

	fields, ok := table.Lookup("351")
	require.True(t, ok)
	require.Len(t, fields, 2)

	v := fields[0]
	assert.Equal(t, "/Dc/0/Voltage", v.Path)
	assert.Equal(t, []int{0, 1}, v.Bytes)
	assert.Equal(t, Unsigned, v.Type)
	assert.Equal(t, 0.01, v.Scale)
	assert.Equal(t, Forward, v.Order)
	require.NotNil(t, v.Precision)
	assert.Equal(t, 2, *v.Precision)

	c := fields[1]
	assert.Equal(t, "/Dc/0/Current", c.Path)
	assert.Equal(t, Signed16, c.Type)
	assert.Equal(t, Reversed, c.Order)
	assert.Nil(t, c.Precision)

	assert.Len(t, skipped, 4)
}

func TestParseKeepsDeclarationOrder(t *testing.T) {
	table, _, err := Parse([]byte(sampleMapping))
	require.NoError(t, err)

	fields, ok := table.Lookup("18FF50E5")
	require.True(t, ok)

	var paths []string
	for _, f := range fields {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"/Soc", "/Alarms/HighVoltage", "/Alarms/LowVoltage"}, paths)
}

func TestParseDefaults(t *testing.T) {
	table, _, err := Parse([]byte(sampleMapping))
	require.NoError(t, err)

	fields, _ := table.Lookup("18FF50E5")
	soc := fields[0]
	assert.Equal(t, DefaultScale, soc.Scale)

	hv := fields[1]
	assert.Equal(t, Bool, hv.Type)
	assert.Equal(t, 3, hv.Bit)
	assert.Equal(t, DefaultTrueValue, hv.TrueValue)
	assert.Equal(t, DefaultFalseValue, hv.FalseValue)

	lv := fields[2]
	assert.Equal(t, 1.0, lv.TrueValue)
	assert.Equal(t, -1.0, lv.FalseValue)
}

func TestParseSkippedEntries(t *testing.T) {
	_, skipped, err := Parse([]byte(sampleMapping))
	require.NoError(t, err)

	byPath := make(map[string]*EntryError)
	for _, e := range skipped {
		assert.Equal(t, "18FF50E5", e.FrameID)
		byPath[e.Path] = e
	}

	require.Contains(t, byPath, "/Broken/NoBytes")
	assert.ErrorIs(t, byPath["/Broken/NoBytes"], ErrMissingBytes)
	require.Contains(t, byPath, "/Broken/NoType")
	assert.ErrorIs(t, byPath["/Broken/NoType"], ErrMissingType)
	require.Contains(t, byPath, "/Broken/BoolNoBit")
	assert.ErrorIs(t, byPath["/Broken/BoolNoBit"], ErrMissingBit)
	require.Contains(t, byPath, "/Broken/Unknown")
	assert.Contains(t, byPath["/Broken/Unknown"].Error(), "F32")
}

func TestParseInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"negative index", `{"bytes": [-1], "type": "U"}`},
		{"empty bytes", `{"bytes": [], "type": "U"}`},
		{"bad byte order", `{"bytes": [0], "type": "U", "byte_order": "little"}`},
		{"negative precision", `{"bytes": [0], "type": "U", "precision": -1}`},
		{"bit out of range", `{"bytes": [0], "type": "bool", "bit": 64}`},
		{"wrong json type", `{"bytes": "0", "type": "U"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"100": {"/x": ` + tt.entry + `}}`
			table, skipped, err := Parse([]byte(doc))
			require.NoError(t, err)
			assert.Len(t, skipped, 1)
			fields, _ := table.Lookup("100")
			assert.Empty(t, fields)
		})
	}
}

func TestParseMalformedDocument(t *testing.T) {
	for _, doc := range []string{`[]`, `{"100": []}`, `{"100": {"/x": {"bytes": [0]`, ``} {
		_, _, err := Parse([]byte(doc))
		assert.Error(t, err, "doc %q", doc)
	}
}

func TestLookupIsCaseSensitive(t *testing.T) {
	table, _, err := Parse([]byte(sampleMapping))
	require.NoError(t, err)

	_, ok := table.Lookup("18ff50e5")
	assert.False(t, ok)
}

func TestPrecisionsAndPaths(t *testing.T) {
	table, _, err := Parse([]byte(sampleMapping))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"/Dc/0/Voltage": 2}, table.Precisions())
	assert.Equal(t, []string{
		"/Alarms/HighVoltage",
		"/Alarms/LowVoltage",
		"/Dc/0/Current",
		"/Dc/0/Voltage",
		"/Soc",
	}, table.Paths())
}

func TestNewTableCopies(t *testing.T) {
	fields := []FieldMapping{{Path: "/a", Bytes: []int{0}, Scale: 1}}
	table := NewTable(map[string][]FieldMapping{"1": fields})
	fields[0].Path = "/b"

	got, ok := table.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "/a", got[0].Path)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "can-mappings.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleMapping), 0o644))

	table, skipped, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Len(t, skipped, 4)

	_, _, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestValueTypeString(t *testing.T) {
	for _, s := range []string{"U", "S8", "S16", "bool"} {
		vt, err := ParseValueType(s)
		require.NoError(t, err)
		assert.Equal(t, s, vt.String())
	}
	_, err := ParseValueType("u")
	assert.Error(t, err)
}
