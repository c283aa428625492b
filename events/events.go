// Package events carries application notifications to whoever is listening:
// in-process subscribers (the HTTP event stream) and an optional MQTT broker.
package events

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Topics published by the application.
const (
	TopicChat                  = "chzzk-chat-event"
	TopicConnectionState       = "connection-state"
	TopicPlaylistItemAdded     = "playlist-item-added"
	TopicPlaylistStateUpdated  = "playlist-state-updated"
	TopicPlaylistError         = "playlist-error"
	TopicCommandConfigReloaded = "command-config-updated"
)

// Sink accepts notifications. Publish must not block on slow consumers.
type Sink interface {
	Publish(topic string, payload any)
}

// Message is one published notification with its payload already encoded.
type Message struct {
	ID      uint64          `json:"id"`
	Topic   string          `json:"topic"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

func encode(topic string, payload any) (json.RawMessage, bool) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("event payload not encodable", slog.String("component", "events"), slog.String("topic", topic), slog.Any("err", err))
		return nil, false
	}
	return b, true
}

// Multi fans a publish out to every sink in order.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(topic string, payload any) {
	for _, s := range m {
		if s != nil {
			s.Publish(topic, payload)
		}
	}
}

// Discard drops everything.
type Discard struct{}

// Publish implements Sink.
func (Discard) Publish(string, any) {}
