package mqtt

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"battery/canbus", "/Dc/0/Voltage", "battery/canbus/Dc/0/Voltage"},
		{"battery/canbus/", "/Soc", "battery/canbus/Soc"},
		{"battery/canbus", "Soc", "battery/canbus/Soc"},
		{"", "/Soc", "Soc"},
	}
	for _, tt := range tests {
		if got := Topic(tt.prefix, tt.path); got != tt.want {
			t.Errorf("Topic(%q, %q): got %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestStatusTopic(t *testing.T) {
	if got := StatusTopic(DefaultTopicPrefix); got != "battery/canbus/status" {
		t.Errorf("got %q, want battery/canbus/status", got)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	payload := FormatStatusPayload(false, time.Time{})

	expected := `{"online":false}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestOnlinePayloadFormat(t *testing.T) {
	payload := FormatStatusPayload(true, time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC))

	var parsed StatusPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !parsed.Online {
		t.Error("expected online=true")
	}
	if parsed.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Timestamp)
	}
}

func TestOnlinePayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	payload := FormatStatusPayload(true, time.Date(2026, 2, 10, 3, 30, 0, 0, loc))

	expected := `{"online":true,"timestamp":"2026-02-10T08:30:00Z"}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}
