package pump

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CommandFormat selects how the trigger payload is encoded for the firmware.
type CommandFormat string

const (
	// FormatFlag sends "1" to start and "0" to stop.
	FormatFlag CommandFormat = "flag"
	// FormatDuration sends the run time in whole seconds to start and "0" to stop.
	FormatDuration CommandFormat = "duration"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (CommandFormat, error) {
	switch CommandFormat(s) {
	case FormatFlag, FormatDuration:
		return CommandFormat(s), nil
	case "":
		return FormatFlag, nil
	}
	return "", fmt.Errorf("unknown pump command format %q", s)
}

// EncodeTrigger returns the trigger payload.
func EncodeTrigger(format CommandFormat, start bool, run time.Duration) []byte {
	if !start {
		return []byte("0")
	}
	if format == FormatDuration {
		secs := int64(run / time.Second)
		if secs < 1 {
			secs = 1
		}
		return []byte(strconv.FormatInt(secs, 10))
	}
	return []byte("1")
}

// ErrMalformedStatus is returned for pump status payloads that cannot be read.
var ErrMalformedStatus = errors.New("pump: malformed status payload")

// Report is a decoded device status message.
type Report struct {
	Status Status
	// Timestamp is the device's own time for the report; zero if absent.
	Timestamp time.Time
}

type statusEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	Status    json.RawMessage `json:"status"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// DecodeStatus reads a status payload. Accepted forms are a JSON object
// {"payload":"on","timestamp":...}, a bare JSON string, or plain text.
// on/off, 1/0 and true/false are understood in any case.
func DecodeStatus(payload []byte) (Report, error) {
	p := bytes.TrimSpace(payload)
	if len(p) == 0 {
		return Report{}, fmt.Errorf("%w: empty", ErrMalformedStatus)
	}

	switch p[0] {
	case '{':
		var env statusEnvelope
		if err := json.Unmarshal(p, &env); err != nil {
			return Report{}, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
		}
		raw := env.Payload
		if raw == nil {
			raw = env.Status
		}
		st, err := statusFromJSON(raw)
		if err != nil {
			return Report{}, err
		}
		ts, err := timestampFromJSON(env.Timestamp)
		if err != nil {
			return Report{}, err
		}
		return Report{Status: st, Timestamp: ts}, nil
	case '"':
		st, err := statusFromJSON(p)
		if err != nil {
			return Report{}, err
		}
		return Report{Status: st}, nil
	}

	st, ok := parseStatus(string(p))
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrMalformedStatus, truncate(string(p), 64))
	}
	return Report{Status: st}, nil
}

func statusFromJSON(raw json.RawMessage) (Status, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: missing payload field", ErrMalformedStatus)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		s = strconv.FormatBool(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return "", fmt.Errorf("%w: payload field has type %T", ErrMalformedStatus, v)
	}
	st, ok := parseStatus(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedStatus, truncate(s, 64))
	}
	return st, nil
}

func parseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true":
		return StatusOn, true
	case "off", "0", "false":
		return StatusOff, true
	}
	return "", false
}

// timestampFromJSON accepts RFC 3339 strings and epoch numbers in seconds
// or milliseconds.
func timestampFromJSON(raw json.RawMessage) (time.Time, error) {
	if raw == nil || string(raw) == "null" {
		return time.Time{}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedStatus, err)
	}
	switch x := v.(type) {
	case float64:
		return fromEpoch(int64(x)), nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t, nil
		}
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return fromEpoch(n), nil
		}
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrMalformedStatus, truncate(x, 64))
	}
	return time.Time{}, fmt.Errorf("%w: timestamp has type %T", ErrMalformedStatus, v)
}

func fromEpoch(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
