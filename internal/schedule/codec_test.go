package schedule

import (
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	s := Schedule{Index: 3, Hour: 6, Minute: 30, DurationSeconds: 120, Days: 42, Enabled: true}
	if got := Encode(s); got != "3:6:30:120:42:1" {
		t.Errorf("Encode: got %q", got)
	}
	if got := EncodeDelete(3); got != "3:0:0:0:0:0" {
		t.Errorf("EncodeDelete: got %q", got)
	}
}

func TestDecodeInvertsEncode(t *testing.T) {
	for _, s := range []Schedule{
		{Index: 0, Hour: 0, Minute: 0, DurationSeconds: 1, Days: AllDays, Enabled: true},
		{Index: 9, Hour: 23, Minute: 59, DurationSeconds: MaxDurationSeconds, Days: NoDays, Enabled: true},
		Empty(5),
		Draft(2),
	} {
		got, err := Decode(Encode(s))
		if err != nil {
			t.Errorf("Decode(Encode(%+v)): %v", s, err)
			continue
		}
		if got != s {
			t.Errorf("round trip: got %+v, want %+v", got, s)
		}
	}
}

func TestDecodeAcceptsZeroDuration(t *testing.T) {
	got, err := Decode("1:8:0:0:62:1")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Schedule{Index: 1, Hour: 8, DurationSeconds: 0, Days: 62, Enabled: true}
	if got != want {
		t.Errorf("Decode: got %+v, want %+v", got, want)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, rec := range []string{
		"",
		"1:2:3:4:5",
		"1:2:3:4:5:1:7",
		"a:2:3:4:5:1",
		"10:8:0:60:62:1",
		"-1:8:0:60:62:1",
		"1:24:0:60:62:1",
		"1:8:60:60:62:1",
		"1:8:0:60:128:1",
		"1:8:0:60:62:2",
		"1:8:0:86401:62:1",
	} {
		if _, err := Decode(rec); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("Decode(%q): got %v, want ErrMalformedRecord", rec, err)
		}
	}
}

func TestDecodeSnapshotForms(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Schedule
	}{
		{
			name:    "array of objects",
			payload: `[{"index":0,"hour":8,"min":0,"dur":60,"dow":62,"en":true},{"index":1,"hour":0,"min":0,"dur":0,"dow":0,"en":false}]`,
			want:    []Schedule{{Index: 0, Hour: 8, DurationSeconds: 60, Days: 62, Enabled: true}, Empty(1)},
		},
		{
			name:    "array of wire strings",
			payload: `["2:7:15:30:1:1"]`,
			want:    []Schedule{{Index: 2, Hour: 7, Minute: 15, DurationSeconds: 30, Days: Sunday, Enabled: true}},
		},
		{
			name:    "numeric strings and 0/1 flags",
			payload: `[{"index":"4","hour":"6","min":5,"dur":"90","dow":"65","en":1}]`,
			want:    []Schedule{{Index: 4, Hour: 6, Minute: 5, DurationSeconds: 90, Days: 65, Enabled: true}},
		},
		{
			name:    "long field names",
			payload: `[{"index":1,"hour":9,"minute":10,"durationSeconds":20,"daysBitmask":2,"enabled":true}]`,
			want:    []Schedule{{Index: 1, Hour: 9, Minute: 10, DurationSeconds: 20, Days: Monday, Enabled: true}},
		},
		{
			name:    "wrapped object",
			payload: `{"schedules":[{"index":5,"hour":18,"min":0,"dur":300,"dow":127,"en":true}]}`,
			want:    []Schedule{{Index: 5, Hour: 18, DurationSeconds: 300, Days: AllDays, Enabled: true}},
		},
		{
			name:    "single object",
			payload: `{"index":3,"hour":6,"min":30,"dur":120,"dow":42,"en":true}`,
			want:    []Schedule{{Index: 3, Hour: 6, Minute: 30, DurationSeconds: 120, Days: 42, Enabled: true}},
		},
		{
			name:    "keyed object",
			payload: `{"7":{"hour":5,"min":0,"dur":10,"dow":2,"en":true},"1":"1:8:0:60:62:0"}`,
			want: []Schedule{
				{Index: 1, Hour: 8, DurationSeconds: 60, Days: 62},
				{Index: 7, Hour: 5, DurationSeconds: 10, Days: Monday, Enabled: true},
			},
		},
		{
			name:    "raw text",
			payload: "0:8:0:60:62:1\n3:6:30:120:42:1;",
			want: []Schedule{
				{Index: 0, Hour: 8, DurationSeconds: 60, Days: 62, Enabled: true},
				{Index: 3, Hour: 6, Minute: 30, DurationSeconds: 120, Days: 42, Enabled: true},
			},
		},
		{
			name:    "json string",
			payload: `"0:8:0:60:62:1,1:9:0:60:62:1"`,
			want: []Schedule{
				{Index: 0, Hour: 8, DurationSeconds: 60, Days: 62, Enabled: true},
				{Index: 1, Hour: 9, DurationSeconds: 60, Days: 62, Enabled: true},
			},
		},
		{
			name:    "duplicate index, last wins",
			payload: `["2:7:0:30:1:1","2:9:0:30:1:1"]`,
			want:    []Schedule{{Index: 2, Hour: 9, DurationSeconds: 30, Days: Sunday, Enabled: true}},
		},
		{
			name:    "empty array",
			payload: `[]`,
			want:    []Schedule{},
		},
	}
	for _, tt := range tests {
		got, err := DecodeSnapshot([]byte(tt.payload))
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %d schedules %+v, want %d", tt.name, len(got), got, len(tt.want))
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s[%d]: got %+v, want %+v", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestDecodeSnapshotMalformed(t *testing.T) {
	for _, payload := range []string{
		"",
		"  ",
		"[",
		`[{"hour":8}]`,
		`[{"index":12,"hour":8,"min":0,"dur":60,"dow":62,"en":true}]`,
		`[{"index":1,"hour":8,"min":0,"dur":60,"dow":62,"en":"maybe"}]`,
		`{"foo":1}`,
		`{"3":{"index":4,"hour":1,"dur":1,"en":true}}`,
		"hello world",
		`[42]`,
	} {
		if _, err := DecodeSnapshot([]byte(payload)); !errors.Is(err, ErrMalformedSnapshot) {
			t.Errorf("DecodeSnapshot(%q): got %v, want ErrMalformedSnapshot", payload, err)
		}
	}
}
