package chat

import (
	"encoding/json"
	"time"
)

// SignalEnvelope is one queued WebRTC signaling payload (SDP offer/answer
// or ICE candidate). The payload is opaque to the relay and forwarded
// verbatim.
type SignalEnvelope struct {
	From      string          `json:"from"`
	Signal    json.RawMessage `json:"signal"`
	Timestamp int64           `json:"timestamp"`
}

// MessageEnvelope is one queued chat message.
type MessageEnvelope struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Event is one queued lifecycle notification, e.g. partnerDisconnected.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// EventTypePartnerDisconnected is pushed to a user's event outbox when
// their partner disconnects (explicitly or via the idle sweeper).
const EventTypePartnerDisconnected = "partnerDisconnected"

// Session is the server-side record of one connected user: identity,
// partner link, and three outboxes drained on read.
//
// Sessions are owned by the Registry and only ever touched while the
// Engine's lock is held.
type Session struct {
	ID        string
	PartnerID string
	LastSeen  time.Time

	signals  []SignalEnvelope
	messages []MessageEnvelope
	events   []Event
}

func (s *Session) drainSignals() []SignalEnvelope {
	out := s.signals
	s.signals = nil
	if out == nil {
		out = []SignalEnvelope{}
	}
	return out
}

func (s *Session) drainMessages() []MessageEnvelope {
	out := s.messages
	s.messages = nil
	if out == nil {
		out = []MessageEnvelope{}
	}
	return out
}

func (s *Session) drainEvents() []Event {
	out := s.events
	s.events = nil
	if out == nil {
		out = []Event{}
	}
	return out
}
