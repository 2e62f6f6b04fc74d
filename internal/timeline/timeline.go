// Package timeline keeps the in-session list of notable device events.
// Entries are only appended and are not persisted.
package timeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Icon hints how an event is drawn.
type Icon string

const (
	IconPowerOn   Icon = "power"
	IconPowerOff  Icon = "power-off"
	IconOnline    Icon = "wifi"
	IconOffline   Icon = "wifi-off"
	IconSchedule  Icon = "calendar"
	IconWarning   Icon = "alert"
	IconConnected Icon = "link"
)

// Event is one timeline entry.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Icon        Icon      `json:"icon"`
}

// Log is an append-only event list, safe for concurrent use.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

// New returns an empty Log.
func New() *Log {
	return &Log{}
}

// Append adds an event, assigning an ID when it has none, and returns it.
func (l *Log) Append(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return e
}

// Add is shorthand for Append with the fields spelled out.
func (l *Log) Add(at time.Time, title, description string, icon Icon) Event {
	return l.Append(Event{Timestamp: at, Title: title, Description: description, Icon: icon})
}

// Events returns a copy of all entries in insertion order.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}

// Latest returns up to n entries, newest first.
func (l *Log) Latest(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, 0, n)
	for i := len(l.events) - 1; i >= len(l.events)-n; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
