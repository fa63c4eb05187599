package metrics

import "sync"

// Counter names used across the relay. Names are intentionally simple; they
// surface as the `event` label on the Prometheus endpoint.
const (
	Join                = "join"
	PartnerFound        = "partner_found"
	Waiting             = "waiting"
	SignalQueued        = "signal_queued"
	SignalDropped       = "signal_dropped"
	MessageQueued       = "message_queued"
	MessageRejected     = "message_rejected"
	Disconnect          = "disconnect"
	PartnerNotified     = "partner_notified"
	SessionSwept        = "session_swept"
	RateLimited         = "rate_limited"
	ValidationFailure   = "validation_failure"
	WebSocketConnect    = "websocket_connect"
	WebSocketDisconnect = "websocket_disconnect"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay is expected to plug into a real metrics backend eventually; this
// type keeps engine and transport logic testable while still being scrapable
// via the Prometheus text endpoint.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
