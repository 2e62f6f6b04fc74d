package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/beegreen/internal/schedule"
	"github.com/sweeney/beegreen/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("Jan 2 3:04:05 PM")
	},
	"duration": func(s schedule.Schedule) string {
		return s.Duration().String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>BeeGreen</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on, .online { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.offline { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>BeeGreen</h1>
{{if not .Onboarded}}<p class="unknown">No device onboarded.</p>{{end}}

<h2>Device</h2>
<table>
<tr><th>State</th><td class="{{if eq (printf "%s" .Device.State) "ONLINE"}}online{{else if eq (printf "%s" .Device.State) "OFFLINE"}}offline{{else}}unknown{{end}}">{{stateOrUnknown (printf "%s" .Device.State)}}{{if .Device.Stale}} (stale){{end}}</td></tr>
<tr><th>Last heard</th><td>{{stamp .Device.LastHeard}}</td></tr>
{{if .Device.FirmwareVersion}}<tr><th>Firmware</th><td>{{.Device.FirmwareVersion}}</td></tr>{{end}}
</table>

<h2>Pump</h2>
<table>
<tr><th>State</th><td class="{{if eq (printf "%s" .Pump.Status) "ON"}}on{{else}}off{{end}}">{{stateOrUnknown (printf "%s" .Pump.Status)}}</td></tr>
<tr><th>Safety timer</th><td>{{if .SafetyArmed}}armed{{else}}idle{{end}}</td></tr>
<tr><th>Last command</th><td>{{stamp .Pump.LastCommandAt}}</td></tr>
<tr><th>Last report</th><td>{{stamp .Pump.LastReportAt}}</td></tr>
</table>

<h2>Schedules</h2>
<table>
{{range .Schedules}}{{if .Enabled}}<tr><td>{{.Label}}</td><td>{{duration .}}</td></tr>
{{end}}{{end}}
</table>

<h2>Timeline</h2>
<table>
{{range .Timeline}}<tr><th>{{stamp .Timestamp}}</th><td>{{.Title}}{{if .Description}}: {{.Description}}{{end}}</td></tr>
{{else}}<tr><td>No events yet</td></tr>
{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .Connected}}connected{{else}}disconnected{{end}}">{{if .Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Recent Messages</h2>
<table>
{{range .Recent}}<tr><th>{{.Topic}}</th><td>{{.Payload}}</td></tr>
{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Offline after</th><td>{{.Config.Threshold}}</td></tr>
<tr><th>Command format</th><td>{{.Config.CommandFormat}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/timeline.json">Timeline</a> | <a href="/messages.json">Messages</a></p>
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
