package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Frames.WithLabelValues(FrameDecoded).Inc()
	m.FieldErrors.WithLabelValues("insufficient_data").Inc()
	m.Publishes.WithLabelValues(ResultOK).Inc()
	m.LinkTransitions.WithLabelValues("connected").Inc()

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// 4 labelled series + 5 plain instruments.
	if n != 9 {
		t.Errorf("expected 9 series, got %d", n)
	}
}

func TestFramesCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Frames.WithLabelValues(FrameDecoded).Add(3)
	m.Frames.WithLabelValues(FrameUnknown).Inc()

	expected := `
# HELP canbus_battery_frames_total CAN frame records read, by outcome.
# TYPE canbus_battery_frames_total counter
canbus_battery_frames_total{outcome="decoded"} 3
canbus_battery_frames_total{outcome="unknown"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "canbus_battery_frames_total"); err != nil {
		t.Error(err)
	}
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
