package mqtt

import (
	"context"
	"errors"
	"testing"
)

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  string
	}{
		{"tcp default", Credentials{Server: "192.168.1.200", Port: 1883}, "tcp://192.168.1.200:1883"},
		{"ssl", Credentials{Server: "broker.example.com", Port: 8883, Transport: TransportSSL}, "ssl://broker.example.com:8883"},
		{"wss adds path", Credentials{Server: "x.hivemq.cloud", Port: 8884, Transport: TransportWSS}, "wss://x.hivemq.cloud:8884/mqtt"},
		{"ws", Credentials{Server: "h", Port: 9001, Transport: TransportWS}, "ws://h:9001/mqtt"},
		{"scheme kept", Credentials{Server: "wss://h:8884/mqtt", Port: 1}, "wss://h:8884/mqtt"},
		{"scheme gets port", Credentials{Server: "ssl://h", Port: 8883}, "ssl://h:8883"},
		{"mqtt scheme maps to tcp", Credentials{Server: "mqtt://h:1883"}, "tcp://h:1883"},
		{"trimmed", Credentials{Server: "  h ", Port: 1883}, "tcp://h:1883"},
	}
	for _, tt := range tests {
		got, err := tt.creds.BrokerURL()
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestBrokerURLErrors(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"empty server", Credentials{Port: 1883}},
		{"no port", Credentials{Server: "h"}},
		{"port too big", Credentials{Server: "h", Port: 70000}},
		{"bad transport", Credentials{Server: "h", Port: 1, Transport: "quic"}},
		{"bad scheme", Credentials{Server: "http://h:80"}},
	}
	for _, tt := range tests {
		if _, err := tt.creds.BrokerURL(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestUsesTLS(t *testing.T) {
	if !UsesTLS("wss://h:8884/mqtt") || !UsesTLS("ssl://h:8883") {
		t.Error("wss and ssl should use TLS")
	}
	if UsesTLS("tcp://h:1883") || UsesTLS("ws://h:9001/mqtt") {
		t.Error("tcp and ws should not use TLS")
	}
}

func TestTopicRole(t *testing.T) {
	tp := DefaultTopics
	tests := []struct {
		topic string
		want  Role
	}{
		{"beegreen/heartbeat", RoleHeartbeat},
		{"beegreen/pump_status", RolePumpStatus},
		{"beegreen/get_schedules_response", RoleSchedules},
		{"beegreen/pump", RoleUnknown},
		{"other", RoleUnknown},
	}
	for _, tt := range tests {
		if got := tp.Role(tt.topic); got != tt.want {
			t.Errorf("Role(%q): got %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestTopicsValidate(t *testing.T) {
	if err := DefaultTopics.Validate(); err != nil {
		t.Errorf("default topics: %v", err)
	}
	tp := DefaultTopics
	tp.Heartbeat = ""
	if err := tp.Validate(); err == nil {
		t.Error("expected error for empty heartbeat topic")
	}
}

func TestConnectErrorUnwrap(t *testing.T) {
	cause := errors.New("bad user name or password")
	var err error = &ConnectError{Reason: ReasonRefused, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Reason != ReasonRefused {
		t.Errorf("errors.As: got %+v", ce)
	}
	if got := (&ConnectError{Reason: ReasonTimeout}).Error(); got != "mqtt connect failed: timeout" {
		t.Errorf("Error(): got %q", got)
	}
}

func TestRealSessionRejectsBadConfig(t *testing.T) {
	s := NewRealSession(0, "beegreen-", nopLogger())
	err := s.Connect(context.Background(), Credentials{})
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Reason != ReasonConfig {
		t.Fatalf("got %v, want invalid_config ConnectError", err)
	}
	if s.IsConnected() {
		t.Error("should not be connected")
	}
	if err := s.Publish("t", nil, AtLeastOnce); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish: got %v, want ErrNotConnected", err)
	}
	if err := s.Subscribe("t", AtLeastOnce); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe: got %v, want ErrNotConnected", err)
	}
	s.Disconnect()
}

func TestFakeSession(t *testing.T) {
	f := NewFakeSession()
	var got []string
	var lost error
	f.SetHandlers(Handlers{
		OnMessage:        func(topic string, payload []byte) { got = append(got, topic+"="+string(payload)) },
		OnConnectionLost: func(err error) { lost = err },
	})

	if err := f.Publish("t", []byte("x"), AtLeastOnce); !errors.Is(err, ErrNotConnected) {
		t.Errorf("publish before connect: got %v", err)
	}

	f.ConnectErr = &ConnectError{Reason: ReasonRefused}
	if err := f.Connect(context.Background(), Credentials{Server: "h"}); err == nil {
		t.Fatal("expected connect error")
	}
	f.ConnectErr = nil
	if err := f.Connect(context.Background(), Credentials{Server: "h"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if f.Connects != 2 || f.LastCredentials.Server != "h" {
		t.Errorf("Connects=%d LastCredentials=%+v", f.Connects, f.LastCredentials)
	}

	f.Publish("beegreen/pump", []byte("1"), AtLeastOnce)
	if p := f.PublishedTo("beegreen/pump"); len(p) != 1 || p[0] != "1" {
		t.Errorf("PublishedTo: got %v", p)
	}

	f.Deliver("beegreen/heartbeat", []byte("alive"))
	if len(got) != 1 || got[0] != "beegreen/heartbeat=alive" {
		t.Errorf("delivered: got %v", got)
	}

	f.Drop(errors.New("eof"))
	if lost == nil || f.IsConnected() {
		t.Errorf("after Drop: lost=%v connected=%v", lost, f.IsConnected())
	}
}
