package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/canbus-battery/internal/config"
	"github.com/sweeney/canbus-battery/internal/mapping"
	"github.com/sweeney/canbus-battery/internal/sink"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := config.Default()
	if cfg.CANInterface != def.CANInterface {
		t.Errorf("interface: got %q, want %q", cfg.CANInterface, def.CANInterface)
	}
	if cfg.Window != def.Window {
		t.Errorf("window: got %v, want %v", cfg.Window, def.Window)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("broker: got %q, want empty", cfg.MQTT.Broker)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.yaml", `
can_interface: can0
window: 20s
mqtt:
  broker: tcp://file-broker:1883
log:
  level: warn
`)

	cfg, err := loadConfig([]string{
		"--config", path,
		"--window", "5s",
		"--nats", "nats://localhost:4222",
		"--led-pin", "17",
	}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CANInterface != "can0" {
		t.Errorf("interface from file: got %q, want can0", cfg.CANInterface)
	}
	if cfg.Window != 5*time.Second {
		t.Errorf("window flag should win: got %v", cfg.Window)
	}
	if cfg.MQTT.Broker != "tcp://file-broker:1883" {
		t.Errorf("broker from file: got %q", cfg.MQTT.Broker)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats flag: got %q", cfg.NATS.URL)
	}
	if cfg.LEDPin != 17 {
		t.Errorf("led pin flag: got %d", cfg.LEDPin)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level from file: got %q", cfg.Log.Level)
	}
}

func TestLoadConfigUnsetFlagsKeepFileValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.yaml", "http_addr: \":9090\"\n")

	cfg, err := loadConfig([]string{"-c", path}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("http_addr: got %q, want :9090", cfg.HTTPAddr)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "stall_timeout: 1s\n")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--nope"}},
		{"positional argument", []string{"extra"}},
		{"missing config file", []string{"--config", filepath.Join(dir, "missing.yaml")}},
		{"invalid config", []string{"--config", bad}},
		{"bad duration", []string{"--window", "soon"}},
		{"empty mapping", []string{"--mapping", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.args, io.Discard); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunHelpExitsZero(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{"--help"}, &stderr); code != exitOK {
		t.Errorf("exit code: got %d, want %d", code, exitOK)
	}
	if !strings.Contains(stderr.String(), "--mapping") {
		t.Errorf("usage should list flags, got %q", stderr.String())
	}
}

func TestRunBadFlagExitsOne(t *testing.T) {
	if code := run([]string{"--window", "0s"}, io.Discard); code != exitStartup {
		t.Errorf("exit code: got %d, want %d", code, exitStartup)
	}
}

func TestRunMissingMappingExitsOne(t *testing.T) {
	dir := t.TempDir()
	args := []string{
		"--mapping", filepath.Join(dir, "missing.json"),
		"--input", "-",
		"--http", "",
		"--log-level", "error",
	}
	if code := run(args, io.Discard); code != exitStartup {
		t.Errorf("exit code: got %d, want %d", code, exitStartup)
	}
}

// A replayed capture ends, nothing more is published and the watchdog
// stops the process with exit status 2.
func TestRunReplayEndsInStall(t *testing.T) {
	dir := t.TempDir()
	mappingPath := writeFile(t, dir, "map.json", `{
		// voltage in 10 mV
		"351": {"/Dc/0/Voltage": {"bytes": [0, 1], "type": "U", "scale": 0.01, "precision": 2}}
	}`)
	inputPath := writeFile(t, dir, "capture.log",
		"  can1  351   [2]  14 97\n  can1  351   [2]  14 98\n")
	cfgPath := writeFile(t, dir, "cfg.yaml", `
mapping_file: `+mappingPath+`
input: `+inputPath+`
window: 50ms
tick: 10ms
poll: 10ms
connection_timeout: 20ms
stall_timeout: 150ms
http_addr: ""
log:
  level: error
`)

	done := make(chan int, 1)
	go func() { done <- run([]string{"--config", cfgPath}, io.Discard) }()

	select {
	case code := <-done:
		if code != exitStalled {
			t.Errorf("exit code: got %d, want %d", code, exitStalled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit")
	}
}

func TestOpenSinksWithoutBrokerLogs(t *testing.T) {
	cfg := config.Default()
	out, links, err := openSinks(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.(sink.Log); !ok {
		t.Errorf("expected sink.Log, got %T", out)
	}
	if len(links) != 0 {
		t.Errorf("expected no connections, got %d", len(links))
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://localhost:1883"
	table := mapping.NewTable(map[string][]mapping.FieldMapping{
		"351": {{Path: "/Dc/0/Voltage", Bytes: []int{0, 1}, Type: mapping.Unsigned, Scale: 0.01}},
		"355": {{Path: "/Soc", Bytes: []int{0, 1}, Type: mapping.Unsigned, Scale: 1}},
	})

	sc := statusConfig(cfg, table)
	if sc.Interface != "can1" {
		t.Errorf("interface: got %q", sc.Interface)
	}
	if sc.Frames != 2 {
		t.Errorf("frames: got %d, want 2", sc.Frames)
	}
	if sc.Paths != 2 {
		t.Errorf("paths: got %d, want 2", sc.Paths)
	}
	if sc.WindowMs != 10000 || sc.StallTimeout != 60000 {
		t.Errorf("timings: got %+v", sc)
	}
	if sc.Broker != "tcp://localhost:1883" {
		t.Errorf("broker: got %q", sc.Broker)
	}

	cfg.Input = "/tmp/capture.log"
	if got := statusConfig(cfg, table).Interface; got != "/tmp/capture.log" {
		t.Errorf("interface with input: got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
