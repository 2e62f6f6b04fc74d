package mqtt

import (
	"context"
	"sync"
)

// Published is one recorded outbound message.
type Published struct {
	Topic   string
	Payload string
	QoS     byte
}

// FakeSession records traffic for test assertions and lets tests inject
// inbound messages and connection loss.
type FakeSession struct {
	mu sync.Mutex

	handlers      Handlers
	connected     bool
	published     []Published
	subscriptions []string

	// ConnectErr, if set, is returned by Connect.
	ConnectErr error
	// PublishErr, if set, is returned by Publish while connected.
	PublishErr error
	// LastCredentials holds the credentials of the last Connect call.
	LastCredentials Credentials
	// Connects counts Connect calls.
	Connects int
	// Disconnects counts Disconnect calls.
	Disconnects int
}

// NewFakeSession returns an unconnected FakeSession.
func NewFakeSession() *FakeSession {
	return &FakeSession{}
}

func (f *FakeSession) SetHandlers(h Handlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *FakeSession) Connect(_ context.Context, creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connects++
	f.LastCredentials = creds
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

// FailConnect sets ConnectErr under the lock, for tests that change it
// while another goroutine may be connecting.
func (f *FakeSession) FailConnect(err error) {
	f.mu.Lock()
	f.ConnectErr = err
	f.mu.Unlock()
}

// SetConnected forces the connection flag without calling handlers.
func (f *FakeSession) SetConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *FakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeSession) Subscribe(filter string, _ byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.subscriptions = append(f.subscriptions, filter)
	return nil
}

func (f *FakeSession) Publish(topic string, payload []byte, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.published = append(f.published, Published{Topic: topic, Payload: string(payload), QoS: qos})
	return nil
}

func (f *FakeSession) Disconnect() {
	f.mu.Lock()
	f.Disconnects++
	f.connected = false
	f.mu.Unlock()
}

// Publishes returns a copy of every recorded publish.
func (f *FakeSession) Publishes() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.published...)
}

// PublishedTo returns the payloads published to topic, in order.
func (f *FakeSession) PublishedTo(topic string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.published {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

// Subscriptions returns the subscribed filters.
func (f *FakeSession) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscriptions...)
}

// Deliver simulates an inbound message.
func (f *FakeSession) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers.OnMessage
	f.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

// Drop simulates the broker connection dropping.
func (f *FakeSession) Drop(err error) {
	f.mu.Lock()
	f.connected = false
	h := f.handlers.OnConnectionLost
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Reset clears recorded traffic and injected errors.
func (f *FakeSession) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = nil
	f.subscriptions = nil
	f.ConnectErr = nil
	f.PublishErr = nil
	f.Connects = 0
	f.Disconnects = 0
}
