// Package mqtt provides the broker session used to talk to the pump device,
// with a paho-backed implementation and a fake for tests.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Topics names the device topics.
type Topics struct {
	PumpTrigger       string `mapstructure:"pump_trigger"`
	PumpStatus        string `mapstructure:"pump_status"`
	Heartbeat         string `mapstructure:"heartbeat"`
	SetSchedule       string `mapstructure:"set_schedule"`
	GetSchedules      string `mapstructure:"get_schedules"`
	SchedulesResponse string `mapstructure:"schedules_response"`
}

// DefaultTopics are the topics used by the BeeGreen firmware.
var DefaultTopics = Topics{
	PumpTrigger:       "beegreen/pump",
	PumpStatus:        "beegreen/pump_status",
	Heartbeat:         "beegreen/heartbeat",
	SetSchedule:       "beegreen/set_schedule",
	GetSchedules:      "beegreen/gets_schedules",
	SchedulesResponse: "beegreen/get_schedules_response",
}

// Role identifies what an inbound topic carries.
type Role int

const (
	RoleUnknown Role = iota
	RoleHeartbeat
	RolePumpStatus
	RoleSchedules
)

func (r Role) String() string {
	switch r {
	case RoleHeartbeat:
		return "heartbeat"
	case RolePumpStatus:
		return "pump_status"
	case RoleSchedules:
		return "schedules"
	}
	return "unknown"
}

// Role returns the role of an inbound topic.
func (t Topics) Role(topic string) Role {
	switch topic {
	case t.Heartbeat:
		return RoleHeartbeat
	case t.PumpStatus:
		return RolePumpStatus
	case t.SchedulesResponse:
		return RoleSchedules
	}
	return RoleUnknown
}

// Subscriptions returns the topics the client listens on.
func (t Topics) Subscriptions() []string {
	return []string{t.Heartbeat, t.PumpStatus, t.SchedulesResponse}
}

// Validate reports an empty topic name.
func (t Topics) Validate() error {
	named := map[string]string{
		"pump_trigger":       t.PumpTrigger,
		"pump_status":        t.PumpStatus,
		"heartbeat":          t.Heartbeat,
		"set_schedule":       t.SetSchedule,
		"get_schedules":      t.GetSchedules,
		"schedules_response": t.SchedulesResponse,
	}
	for name, v := range named {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("topic %s is empty", name)
		}
	}
	return nil
}

// QoS levels.
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
)

// MessageHandler receives inbound messages. It may be called from a
// transport goroutine.
type MessageHandler func(topic string, payload []byte)

// LostHandler is called once when an established connection drops.
type LostHandler func(err error)

// Handlers are the session callbacks.
type Handlers struct {
	OnMessage        MessageHandler
	OnConnectionLost LostHandler
}

// Publisher is the outbound half of a session.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte) error
	IsConnected() bool
}

// Session is a single broker connection. There is no automatic reconnection:
// after a loss the owner decides whether to Connect again.
type Session interface {
	Publisher

	// SetHandlers installs callbacks. Must be called before Connect.
	SetHandlers(h Handlers)

	// Connect opens the connection. Failures are returned as *ConnectError.
	Connect(ctx context.Context, creds Credentials) error

	// Subscribe registers interest in a topic filter.
	Subscribe(filter string, qos byte) error

	// Disconnect closes the connection. Safe to call when not connected.
	Disconnect()
}

// ErrNotConnected is returned for operations attempted without a live session.
var ErrNotConnected = errors.New("mqtt: not connected")

// ConnectReason classifies a connection failure.
type ConnectReason string

const (
	ReasonTimeout  ConnectReason = "timeout"
	ReasonRefused  ConnectReason = "refused"
	ReasonCanceled ConnectReason = "canceled"
	ReasonConfig   ConnectReason = "invalid_config"
)

// ConnectError reports why a connection attempt failed.
type ConnectError struct {
	Reason ConnectReason
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mqtt connect failed: %s", e.Reason)
	}
	return fmt.Sprintf("mqtt connect failed: %s: %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Transport schemes understood by Credentials.BrokerURL.
const (
	TransportTCP = "tcp"
	TransportSSL = "ssl"
	TransportWS  = "ws"
	TransportWSS = "wss"
)

// Credentials are the broker address and login.
type Credentials struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Transport string // tcp, ssl, ws or wss; empty means tcp
}

// BrokerURL returns the paho broker URL. A Server that already carries a
// scheme is kept as is, with Port filled in when the URL has none.
func (c Credentials) BrokerURL() (string, error) {
	server := strings.TrimSpace(c.Server)
	if server == "" {
		return "", errors.New("broker server is empty")
	}

	if strings.Contains(server, "://") {
		u, err := url.Parse(server)
		if err != nil {
			return "", fmt.Errorf("parse broker url: %w", err)
		}
		switch u.Scheme {
		case "mqtt":
			u.Scheme = TransportTCP
		case "mqtts", "tls":
			u.Scheme = TransportSSL
		case TransportTCP, TransportSSL, TransportWS, TransportWSS:
		default:
			return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
		}
		if u.Port() == "" && c.Port > 0 {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.Port))
		}
		return u.String(), nil
	}

	if c.Port <= 0 || c.Port > 65535 {
		return "", fmt.Errorf("invalid broker port %d", c.Port)
	}
	scheme := c.Transport
	if scheme == "" {
		scheme = TransportTCP
	}
	host := net.JoinHostPort(server, strconv.Itoa(c.Port))
	switch scheme {
	case TransportTCP, TransportSSL:
		return scheme + "://" + host, nil
	case TransportWS, TransportWSS:
		return scheme + "://" + host + "/mqtt", nil
	}
	return "", fmt.Errorf("unsupported transport %q", scheme)
}

// UsesTLS reports whether the broker URL needs a TLS config.
func UsesTLS(brokerURL string) bool {
	return strings.HasPrefix(brokerURL, TransportSSL+"://") || strings.HasPrefix(brokerURL, TransportWSS+"://")
}
