// Package mqtt publishes battery values to an MQTT broker, one retained
// topic per value path.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultTopicPrefix is prepended to every value path.
const DefaultTopicPrefix = "battery/canbus"

// statusSuffix is the topic carrying the publisher's own online state.
const statusSuffix = "status"

// Topic returns the topic a value path is published under.
// Topic("battery/canbus", "/Dc/0/Voltage") == "battery/canbus/Dc/0/Voltage".
func Topic(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	path = strings.TrimPrefix(path, "/")
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}

// StatusTopic returns the topic used for the online/offline marker and LWT.
func StatusTopic(prefix string) string {
	return Topic(prefix, statusSuffix)
}

// StatusPayload is the document written to the status topic.
type StatusPayload struct {
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp,omitempty"`
}

// FormatStatusPayload creates the status document. The will message is
// registered before connecting so it carries no timestamp.
func FormatStatusPayload(online bool, t time.Time) []byte {
	p := StatusPayload{Online: online}
	if !t.IsZero() {
		p.Timestamp = t.UTC().Format(time.RFC3339)
	}
	data, _ := json.Marshal(p)
	return data
}
