package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// WireVersion identifies the record layout produced by Encode:
// index:hour:minute:duration:days:enabled, all decimal, enabled as 1 or 0.
const WireVersion = 1

const wireFields = 6

var (
	// ErrMalformedRecord is returned for a wire record that cannot be parsed.
	ErrMalformedRecord = errors.New("schedule: malformed record")
	// ErrMalformedSnapshot is returned for a snapshot payload that cannot be parsed.
	ErrMalformedSnapshot = errors.New("schedule: malformed snapshot")
)

// Encode returns the wire record for s.
func Encode(s Schedule) string {
	en := 0
	if s.Enabled {
		en = 1
	}
	return fmt.Sprintf("%d:%d:%d:%d:%d:%d", s.Index, s.Hour, s.Minute, s.DurationSeconds, s.Days, en)
}

// EncodeDelete returns the record that clears a slot on the device.
func EncodeDelete(index int) string {
	return Encode(Empty(index))
}

// Decode parses and validates one wire record.
func Decode(rec string) (Schedule, error) {
	parts := strings.Split(strings.TrimSpace(rec), ":")
	if len(parts) != wireFields {
		return Schedule{}, fmt.Errorf("%w: %q has %d fields, want %d", ErrMalformedRecord, rec, len(parts), wireFields)
	}
	var n [wireFields]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: %q field %d: %v", ErrMalformedRecord, rec, i, err)
		}
		n[i] = v
	}
	if n[4] < 0 || n[4] > 255 {
		return Schedule{}, fmt.Errorf("%w: %q days out of range", ErrMalformedRecord, rec)
	}
	if n[5] != 0 && n[5] != 1 {
		return Schedule{}, fmt.Errorf("%w: %q enabled must be 0 or 1", ErrMalformedRecord, rec)
	}
	s := Schedule{
		Index:           n[0],
		Hour:            n[1],
		Minute:          n[2],
		DurationSeconds: n[3],
		Days:            Days(n[4]),
		Enabled:         n[5] == 1,
	}
	if err := s.Validate(false); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return s, nil
}

// DecodeSnapshot reads the device's schedule list. The payload may be a
// JSON array (of objects or wire strings), a JSON object (either
// {"schedules":[...]}, a single schedule, or a map keyed by index), a JSON
// string, or raw text holding wire records separated by newlines,
// semicolons, commas or spaces. Later entries for the same index win.
func DecodeSnapshot(payload []byte) ([]Schedule, error) {
	p := bytes.TrimSpace(payload)
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedSnapshot)
	}

	var list []Schedule
	var err error
	switch p[0] {
	case '[':
		list, err = decodeArray(p)
	case '{':
		list, err = decodeObject(p)
	case '"':
		var s string
		if err := json.Unmarshal(p, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		list, err = decodeText(s)
	default:
		list, err = decodeText(string(p))
	}
	if err != nil {
		return nil, err
	}
	return dedupe(list), nil
}

func decodeArray(p []byte) ([]Schedule, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(p, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	out := make([]Schedule, 0, len(items))
	for i, raw := range items {
		s, err := decodeItem(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformedSnapshot, i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeItem(raw json.RawMessage) (Schedule, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var rec string
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Schedule{}, err
		}
		return Decode(rec)
	}
	var s Schedule
	if err := json.Unmarshal(raw, &s); err != nil {
		return Schedule{}, err
	}
	if err := s.Validate(false); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func decodeObject(p []byte) ([]Schedule, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(p, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if inner, ok := m["schedules"]; ok {
		return decodeArray(inner)
	}
	if _, ok := m["index"]; ok {
		s, err := decodeItem(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		return []Schedule{s}, nil
	}

	out := make([]Schedule, 0, len(m))
	for key, raw := range m {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: unexpected key %q", ErrMalformedSnapshot, key)
		}
		s, err := decodeKeyed(idx, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: slot %d: %v", ErrMalformedSnapshot, idx, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeKeyed reads an entry of an index-keyed object. The key supplies the
// index when the entry omits it.
func decodeKeyed(idx int, raw json.RawMessage) (Schedule, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return Schedule{}, err
		}
		if _, ok := m["index"]; !ok {
			m["index"] = json.RawMessage(strconv.Itoa(idx))
			raw, _ = json.Marshal(m)
		}
	}
	s, err := decodeItem(raw)
	if err != nil {
		return Schedule{}, err
	}
	if s.Index != idx {
		return Schedule{}, fmt.Errorf("index %d under key %d", s.Index, idx)
	}
	return s, nil
}

func decodeText(s string) ([]Schedule, error) {
	recs := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case '\n', '\r', ';', ',', ' ', '\t':
			return true
		}
		return false
	})
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrMalformedSnapshot)
	}
	out := make([]Schedule, 0, len(recs))
	for _, rec := range recs {
		sc, err := Decode(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// dedupe keeps the last entry per index and orders by index.
func dedupe(list []Schedule) []Schedule {
	var seen [Slots]bool
	var slots [Slots]Schedule
	for _, s := range list {
		slots[s.Index] = s
		seen[s.Index] = true
	}
	out := make([]Schedule, 0, len(list))
	for i := range slots {
		if seen[i] {
			out = append(out, slots[i])
		}
	}
	return out
}
