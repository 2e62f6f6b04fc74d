package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/beegreen/internal/logger"
)

// RealSession talks to an actual MQTT broker through paho.
type RealSession struct {
	log            *logger.Logger
	connectTimeout time.Duration
	clientIDPrefix string

	mu       sync.Mutex
	client   paho.Client
	handlers Handlers
	broker   string
}

// NewRealSession returns an unconnected session.
func NewRealSession(connectTimeout time.Duration, clientIDPrefix string, log *logger.Logger) *RealSession {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &RealSession{
		log:            log.Named("mqtt"),
		connectTimeout: connectTimeout,
		clientIDPrefix: clientIDPrefix,
	}
}

func (s *RealSession) SetHandlers(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

// Broker returns the URL of the last connection attempt.
func (s *RealSession) Broker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broker
}

func (s *RealSession) clientID() string {
	return s.clientIDPrefix + uuid.NewString()[:8]
}

// Connect dials the broker. A previous connection is closed first.
func (s *RealSession) Connect(ctx context.Context, creds Credentials) error {
	broker, err := creds.BrokerURL()
	if err != nil {
		return &ConnectError{Reason: ReasonConfig, Err: err}
	}
	s.Disconnect()

	s.mu.Lock()
	h := s.handlers
	s.broker = broker
	s.mu.Unlock()

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(s.clientID()).
		SetUsername(creds.Username).
		SetPassword(creds.Password).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(s.connectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true)
	if UsesTLS(broker) {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Topic(), msg.Payload())
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.log.Warnw("connection lost", "broker", broker, "err", err)
		if h.OnConnectionLost != nil {
			h.OnConnectionLost(err)
		}
	})

	client := paho.NewClient(opts)
	token := client.Connect()

	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		client.Disconnect(0)
		return &ConnectError{Reason: ReasonTimeout, Err: fmt.Errorf("no answer from %s within %v", broker, s.connectTimeout)}
	case <-ctx.Done():
		client.Disconnect(0)
		return &ConnectError{Reason: ReasonCanceled, Err: ctx.Err()}
	}
	if err := token.Error(); err != nil {
		return &ConnectError{Reason: ReasonRefused, Err: err}
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.log.Infow("connected", "broker", broker)
	return nil
}

func (s *RealSession) current() paho.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *RealSession) IsConnected() bool {
	c := s.current()
	return c != nil && c.IsConnectionOpen()
}

// Subscribe registers filter. Messages are routed to the OnMessage handler.
func (s *RealSession) Subscribe(filter string, qos byte) error {
	c := s.current()
	if c == nil || !c.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.Subscribe(filter, qos, nil)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	s.log.Debugw("subscribed", "topic", filter)
	return nil
}

// Publish sends payload, not retained.
func (s *RealSession) Publish(topic string, payload []byte, qos byte) error {
	c := s.current()
	if c == nil || !c.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (s *RealSession) Disconnect() {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	if c != nil {
		c.Disconnect(250)
	}
}
