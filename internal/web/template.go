package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/canbus-battery/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>CAN Battery</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 50%; }
.connected { color: green; font-weight: bold; }
.disconnected { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>CAN Battery</h1>

<h2>Link</h2>
<table>
<tr><th>CAN</th><td id="link" class="{{if .Connected}}connected{{else}}disconnected{{end}}">{{if .Connected}}CONNECTED{{else}}DISCONNECTED{{end}}</td></tr>
<tr><th>Last frame</th><td>{{ts .LastFrame}}</td></tr>
<tr><th>Last publish</th><td>{{ts .LastPublish}}</td></tr>
<tr><th>Sink</th><td class="{{if .SinkConnected}}connected{{else}}disconnected{{end}}">{{if .SinkConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Config.NATS}}<tr><th>NATS</th><td>{{.Config.NATS}}</td></tr>{{end}}
</table>

<h2>Values</h2>
<table>
{{range .Values}}<tr><th>{{.Path}}</th><td>{{.Value}}</td></tr>
{{else}}<tr><td colspan="2">nothing published yet</td></tr>
{{end}}</table>

<h2>Counters</h2>
<table>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
<tr><th>Unknown ids</th><td>{{.Counts.Unknown}}</td></tr>
<tr><th>Malformed lines</th><td>{{.Counts.Malformed}}</td></tr>
<tr><th>Field errors</th><td>{{.Counts.FieldErrors}}</td></tr>
<tr><th>Windows flushed</th><td>{{.Counts.Flushes}}</td></tr>
<tr><th>Published</th><td>{{.Counts.Published}}</td></tr>
<tr><th>Publish errors</th><td>{{.Counts.PublishErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
<tr><th>Interface</th><td>{{.Config.Interface}}</td></tr>
<tr><th>Mapping</th><td>{{.Config.MappingFile}} ({{.Config.Frames}} frames, {{.Config.Paths}} paths)</td></tr>
<tr><th>Window</th><td>{{.Config.WindowMs}}ms</td></tr>
<tr><th>Connection timeout</th><td>{{.Config.ConnectionTimeout}}ms</td></tr>
<tr><th>Stall timeout</th><td>{{.Config.StallTimeout}}ms</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
