package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/beegreen/internal/status"
)

// TimelineJSON lists session events, newest first.
type TimelineJSON struct {
	Events []EventJSON `json:"events"`
}

// EventJSON is one timeline entry.
type EventJSON struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon"`
}

// MessagesJSON lists recent inbound messages, oldest first.
type MessagesJSON struct {
	Messages []MessageJSON `json:"messages"`
}

// MessageJSON is one received message.
type MessageJSON struct {
	At      string `json:"at"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

func formatTimeline(snap status.Snapshot) []byte {
	tj := TimelineJSON{Events: []EventJSON{}}
	for _, e := range snap.Timeline {
		tj.Events = append(tj.Events, EventJSON{
			ID:          e.ID,
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
			Title:       e.Title,
			Description: e.Description,
			Icon:        string(e.Icon),
		})
	}
	data, _ := json.MarshalIndent(tj, "", "  ")
	return data
}

func formatMessages(snap status.Snapshot) []byte {
	mj := MessagesJSON{Messages: []MessageJSON{}}
	for _, m := range snap.Recent {
		mj.Messages = append(mj.Messages, MessageJSON{
			At:      m.At.UTC().Format(time.RFC3339),
			Topic:   m.Topic,
			Payload: m.Payload,
		})
	}
	data, _ := json.MarshalIndent(mj, "", "  ")
	return data
}
