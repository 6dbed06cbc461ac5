package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/canbus-battery/internal/sink"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Connected     bool                  `json:"connected"`
	LastFrame     string                `json:"last_frame,omitempty"`
	LastPublish   string                `json:"last_publish"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     string                `json:"start_time"`
	Timestamp     string                `json:"timestamp"`
	Sink          SinkStatus            `json:"sink"`
	Counts        CountsJSON            `json:"counts"`
	Values        map[string]sink.Value `json:"values"`
	Config        ConfigJSON            `json:"config"`
}

// SinkStatus reports the output sink connection state.
type SinkStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
	NATS      string `json:"nats,omitempty"`
}

// CountsJSON is the JSON representation of activity counters.
type CountsJSON struct {
	Frames        int `json:"frames"`
	Unknown       int `json:"unknown"`
	Malformed     int `json:"malformed"`
	FieldErrors   int `json:"field_errors"`
	Flushes       int `json:"flushes"`
	Published     int `json:"published"`
	PublishErrors int `json:"publish_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Interface           string `json:"interface"`
	MappingFile         string `json:"mapping_file"`
	Frames              int    `json:"frames"`
	Paths               int    `json:"paths"`
	WindowMs            int64  `json:"window_ms"`
	TickMs              int64  `json:"tick_ms"`
	ConnectionTimeoutMs int64  `json:"connection_timeout_ms"`
	StallTimeoutMs      int64  `json:"stall_timeout_ms"`
	HTTPAddr            string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	values := make(map[string]sink.Value, len(snap.Values))
	for _, v := range snap.Values {
		values[v.Path] = v.Value
	}

	inner := StatusInner{
		Connected:     snap.Connected,
		LastFrame:     formatTime(snap.LastFrame),
		LastPublish:   formatTime(snap.LastPublish),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		Sink: SinkStatus{
			Connected: snap.SinkConnected,
			Broker:    snap.Config.Broker,
			NATS:      snap.Config.NATS,
		},
		Counts: CountsJSON{
			Frames:        snap.Counts.Frames,
			Unknown:       snap.Counts.Unknown,
			Malformed:     snap.Counts.Malformed,
			FieldErrors:   snap.Counts.FieldErrors,
			Flushes:       snap.Counts.Flushes,
			Published:     snap.Counts.Published,
			PublishErrors: snap.Counts.PublishErrors,
		},
		Values: values,
		Config: ConfigJSON{
			Interface:           snap.Config.Interface,
			MappingFile:         snap.Config.MappingFile,
			Frames:              snap.Config.Frames,
			Paths:               snap.Config.Paths,
			WindowMs:            snap.Config.WindowMs,
			TickMs:              snap.Config.TickMs,
			ConnectionTimeoutMs: snap.Config.ConnectionTimeout,
			StallTimeoutMs:      snap.Config.StallTimeout,
			HTTPAddr:            snap.Config.HTTPAddr,
		},
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
