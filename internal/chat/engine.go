package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/janaaaac/meetworld-relay/internal/metrics"
	"github.com/janaaaac/meetworld-relay/internal/ratelimit"
)

// Matchmaking actions reported in FindPartnerResult.
const (
	ActionWaiting      = "waiting"
	ActionPartnerFound = "partnerFound"
)

// Engine applies chat actions to a Registry, one action at a time.
//
// Every operation runs as a single critical section: pairing, outbox
// append and drain, and the cross-session updates of disconnect are
// atomic with respect to each other, so partner references can never be
// observed half-updated.
type Engine struct {
	log     *slog.Logger
	clock   ratelimit.Clock
	metrics *metrics.Metrics

	mu  sync.Mutex
	reg *Registry
}

func NewEngine(reg *Registry, logger *slog.Logger, clock ratelimit.Clock, m *metrics.Metrics) *Engine {
	if reg == nil {
		reg = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	return &Engine{
		log:     logger,
		clock:   clock,
		metrics: m,
		reg:     reg,
	}
}

type JoinResult struct {
	Success bool `json:"success"`
}

type FindPartnerResult struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	Partner string `json:"partner,omitempty"`
}

// SendResult is the envelope for signal and chatMessage actions. Business
// failures (no partner) surface here with Success=false, not as transport
// errors.
type SendResult struct {
	Success       bool   `json:"success"`
	MessageQueued bool   `json:"messageQueued,omitempty"`
	Error         string `json:"error,omitempty"`
}

type SignalsResult struct {
	Signals []SignalEnvelope `json:"signals"`
}

type MessagesResult struct {
	Messages []MessageEnvelope `json:"messages"`
}

type EventsResult struct {
	Events []Event `json:"events"`
}

// BatchResult drains all three outboxes in one atomic step.
type BatchResult struct {
	Signals  []SignalEnvelope  `json:"signals"`
	Messages []MessageEnvelope `json:"messages"`
	Events   []Event           `json:"events"`
}

type DebugInfo struct {
	UserID        string `json:"userId"`
	UserExists    bool   `json:"userExists"`
	Partner       string `json:"partner"`
	PartnerExists bool   `json:"partnerExists"`
	SignalCount   int    `json:"signalCount"`
	MessageCount  int    `json:"messageCount"`
	EventCount    int    `json:"eventCount"`
	TotalUsers    int    `json:"totalUsers"`
	WaitingUser   string `json:"waitingUser"`
}

type Status struct {
	Status      string `json:"status"`
	Users       int    `json:"users"`
	WaitingUser string `json:"waitingUser"`
	Timestamp   string `json:"timestamp"`
}

// Join creates (or replaces) the session for userID. Re-joining discards
// any previous state for the id, including queued outbox items.
func (e *Engine) Join(userID string) JoinResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reg.Set(userID, &Session{
		ID:       userID,
		LastSeen: e.clock.Now(),
	})
	e.metrics.Inc(metrics.Join)
	e.log.Debug("user joined", "user_id", userID, "users", e.reg.Size())
	return JoinResult{Success: true}
}

// FindPartner pairs the caller with the current waiter, or makes the
// caller the new waiter.
//
// The caller can never be paired with themselves: a repeated call from the
// current waiter leaves them waiting. A stale waiting slot (the waiter's
// session is gone) is treated as if nobody were waiting. A caller with no
// session is joined implicitly first.
func (e *Engine) FindPartner(userID string) FindPartnerResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	me, ok := e.reg.Get(userID)
	if !ok {
		me = &Session{ID: userID}
		e.reg.Set(userID, me)
	}
	me.LastSeen = e.clock.Now()

	waitingID := e.reg.WaitingID()
	if waitingID != "" && waitingID != userID {
		if partner, ok := e.reg.Get(waitingID); ok {
			// Both sides of the pair are linked inside this one critical
			// section so a half-paired state can never be observed.
			me.PartnerID = waitingID
			partner.PartnerID = userID
			e.reg.SetWaitingID("")

			e.metrics.Inc(metrics.PartnerFound)
			e.log.Debug("partner found", "user_id", userID, "partner_id", waitingID)
			return FindPartnerResult{Success: true, Action: ActionPartnerFound, Partner: waitingID}
		}
		// The waiter disconnected without clearing the slot; fall through
		// and let the caller take it over.
	}

	e.reg.SetWaitingID(userID)
	e.metrics.Inc(metrics.Waiting)
	e.log.Debug("user waiting for partner", "user_id", userID)
	return FindPartnerResult{Success: true, Action: ActionWaiting}
}

// Signal queues a signaling payload in the partner's outbox.
//
// A caller with no session or no partner gets Success=true anyway: the
// action is a silent no-op. Clients spray ICE candidates around the moment
// of pairing and unpairing, and failing those requests would only generate
// retry noise.
func (e *Engine) Signal(userID string, payload json.RawMessage) SendResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	me, ok := e.reg.Get(userID)
	if ok {
		me.LastSeen = e.clock.Now()
		if me.PartnerID != "" {
			if partner, ok := e.reg.Get(me.PartnerID); ok {
				partner.signals = append(partner.signals, SignalEnvelope{
					From:      userID,
					Signal:    payload,
					Timestamp: e.nowMillis(),
				})
				e.metrics.Inc(metrics.SignalQueued)
				return SendResult{Success: true}
			}
		}
	}
	e.metrics.Inc(metrics.SignalDropped)
	return SendResult{Success: true}
}

// Signals drains the caller's signal outbox. Unknown users get an empty
// result, not an error.
func (e *Engine) Signals(userID string) SignalsResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	me, ok := e.reg.Get(userID)
	if !ok {
		return SignalsResult{Signals: []SignalEnvelope{}}
	}
	me.LastSeen = e.clock.Now()
	return SignalsResult{Signals: me.drainSignals()}
}

// SendMessage queues a chat message in the partner's outbox.
func (e *Engine) SendMessage(userID, message string) SendResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	me, ok := e.reg.Get(userID)
	if !ok || me.PartnerID == "" {
		e.metrics.Inc(metrics.MessageRejected)
		return SendResult{Success: false, Error: "No partner or user not found"}
	}
	me.LastSeen = e.clock.Now()

	partner, ok := e.reg.Get(me.PartnerID)
	if !ok {
		e.metrics.Inc(metrics.MessageRejected)
		return SendResult{Success: false, Error: "Partner not found"}
	}

	partner.messages = append(partner.messages, MessageEnvelope{
		From:      userID,
		Message:   message,
		Timestamp: e.nowMillis(),
	})
	e.metrics.Inc(metrics.MessageQueued)
	e.log.Debug("message queued", "user_id", userID, "partner_id", me.PartnerID)
	return SendResult{Success: true, MessageQueued: true}
}

// Messages drains the caller's message outbox.
func (e *Engine) Messages(userID string) MessagesResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	me, ok := e.reg.Get(userID)
	if !ok {
		return MessagesResult{Messages: []MessageEnvelope{}}
	}
	me.LastSeen = e.clock.Now()
	return MessagesResult{Messages: me.drainMessages()}
}

// Events drains the caller's event outbox.
func (e *Engine) Events(userID string) EventsResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	me, ok := e.reg.Get(userID)
	if !ok {
		return EventsResult{Events: []Event{}}
	}
	me.LastSeen = e.clock.Now()
	return EventsResult{Events: me.drainEvents()}
}

// BatchUpdate drains signals, messages and events in one atomic step, so a
// single poll round-trip empties every outbox.
func (e *Engine) BatchUpdate(userID string) BatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := BatchResult{
		Signals:  []SignalEnvelope{},
		Messages: []MessageEnvelope{},
		Events:   []Event{},
	}

	me, ok := e.reg.Get(userID)
	if !ok {
		return result
	}
	me.LastSeen = e.clock.Now()

	result.Signals = me.drainSignals()
	result.Messages = me.drainMessages()
	result.Events = me.drainEvents()
	return result
}

// Disconnect removes the caller's session, unlinks and notifies the
// partner, and clears the waiting slot if the caller held it. Disconnect
// of an unknown user is a no-op reported as success.
func (e *Engine) Disconnect(userID string) JoinResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.disconnectLocked(userID)
	return JoinResult{Success: true}
}

func (e *Engine) disconnectLocked(userID string) {
	if me, ok := e.reg.Get(userID); ok && me.PartnerID != "" {
		if partner, ok := e.reg.Get(me.PartnerID); ok {
			partner.PartnerID = ""
			partner.events = append(partner.events, Event{
				Type:      EventTypePartnerDisconnected,
				Timestamp: e.nowMillis(),
			})
			e.metrics.Inc(metrics.PartnerNotified)
		}
	}

	if e.reg.WaitingID() == userID {
		e.reg.SetWaitingID("")
	}
	e.reg.Delete(userID)
	e.metrics.Inc(metrics.Disconnect)
	e.log.Debug("user disconnected", "user_id", userID, "users", e.reg.Size())
}

// EvictIdle disconnects every session whose LastSeen is before cutoff and
// returns the evicted ids. Partners receive the same partnerDisconnected
// event an explicit disconnect produces.
func (e *Engine) EvictIdle(cutoff time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var idle []string
	for _, id := range e.reg.IDs() {
		if s, ok := e.reg.Get(id); ok && s.LastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}

	for _, id := range idle {
		// A session revived by its partner's eviction notification is still
		// idle by timestamp; eviction order does not matter because
		// disconnectLocked tolerates already-deleted partners.
		e.disconnectLocked(id)
		e.metrics.Inc(metrics.SessionSwept)
	}
	return idle
}

// Debug returns a read-only snapshot of the caller's state for
// troubleshooting. It does not refresh LastSeen.
func (e *Engine) Debug(userID string) DebugInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := DebugInfo{
		UserID:      userID,
		TotalUsers:  e.reg.Size(),
		WaitingUser: e.reg.WaitingID(),
	}

	me, ok := e.reg.Get(userID)
	if !ok {
		return info
	}
	info.UserExists = true
	info.Partner = me.PartnerID
	if me.PartnerID != "" {
		info.PartnerExists = e.reg.Has(me.PartnerID)
	}
	info.SignalCount = len(me.signals)
	info.MessageCount = len(me.messages)
	info.EventCount = len(me.events)
	return info
}

// Status returns the public service snapshot served on GET /api/chat.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	waiting := "no"
	if e.reg.WaitingID() != "" {
		waiting = "yes"
	}
	return Status{
		Status:      "running",
		Users:       e.reg.Size(),
		WaitingUser: waiting,
		Timestamp:   e.clock.Now().UTC().Format(time.RFC3339),
	}
}

func (e *Engine) nowMillis() int64 {
	return e.clock.Now().UnixMilli()
}
