package chat

// Registry holds the session map and the single waiting-user slot. It is
// plain storage: no business logic, no observable failures (absence is
// "not found").
//
// A Registry is not safe for concurrent use on its own; the Engine
// serializes every access under its lock. Constructing the Registry
// explicitly (instead of a package-level singleton) lets tests run
// multiple independent instances.
type Registry struct {
	sessions  map[string]*Session
	waitingID string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Set(id string, s *Session) {
	r.sessions[id] = s
}

func (r *Registry) Delete(id string) {
	delete(r.sessions, id)
}

func (r *Registry) Has(id string) bool {
	_, ok := r.sessions[id]
	return ok
}

func (r *Registry) Size() int {
	return len(r.sessions)
}

// WaitingID returns the id of the user currently seeking a partner, or ""
// when nobody is waiting. The referenced session may have been deleted
// without clearing the slot; callers must treat that as "nobody waiting".
func (r *Registry) WaitingID() string {
	return r.waitingID
}

func (r *Registry) SetWaitingID(id string) {
	r.waitingID = id
}

// IDs returns all session ids. The order is unspecified.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}
