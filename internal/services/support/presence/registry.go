package presence

import (
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultHistoryLimit caps per-session history when no limit is configured.
const DefaultHistoryLimit = 1000

// Stats summarizes registry occupancy.
type Stats struct {
	Sessions     int `json:"sessions"`
	Online       int `json:"online"`
	AdminsOnline int `json:"admins_online"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithHistoryLimit caps each session's history at limit entries, dropping the
// oldest first. Non-positive values keep the default.
func WithHistoryLimit(limit int) Option {
	return func(r *Registry) {
		if limit > 0 {
			r.historyLimit = limit
		}
	}
}

// WithClock overrides the time source used to stamp identify order.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

type entry struct {
	session Session
	// seq orders identify calls; the highest online admin seq wins routing.
	seq uint64
}

// Registry maps identities to sessions for the life of the process.
type Registry struct {
	mu           sync.Mutex
	sessions     map[string]*entry
	byHandle     map[Handle]string
	order        []string
	seq          uint64
	historyLimit int
	now          func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:     make(map[string]*entry),
		byHandle:     make(map[Handle]string),
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert records that identity is now reachable at handle.
//
// A new identity is created online with empty history. An existing one is
// marked online with the new handle; its identity and admin role never change.
// When the session was already online on a different handle, that handle is
// returned as superseded.
func (r *Registry) Upsert(identity, displayName string, isAdmin bool, handle Handle) (Session, Handle) {
	identity = strings.TrimSpace(identity)
	displayName = strings.TrimSpace(displayName)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	now := r.now().UTC()

	current, ok := r.sessions[identity]
	if !ok {
		current = &entry{
			session: Session{
				Identity:    identity,
				DisplayName: displayName,
				IsAdmin:     isAdmin,
				History:     []Message{},
			},
		}
		r.sessions[identity] = current
		r.order = append(r.order, identity)
	}

	var superseded Handle
	previous := current.session.Handle
	// A connection may have switched identity, so the old handle can belong
	// to someone else by now.
	ownsPrevious := previous != "" && previous != handle && r.byHandle[previous] == identity
	if ownsPrevious {
		if current.session.Online {
			superseded = previous
		}
		delete(r.byHandle, previous)
	}

	if ok && displayName != "" {
		current.session.DisplayName = displayName
	}
	current.session.Online = true
	current.session.Handle = handle
	current.session.IdentifiedAt = now
	current.seq = r.seq
	r.byHandle[handle] = identity

	return current.session.clone(), superseded
}

// MarkOffline flags the session currently bound to handle as offline.
//
// Stale handles (replaced by a later Upsert) and unknown handles report false.
// The handle stays on the session until the next Upsert replaces it.
func (r *Registry) MarkOffline(handle Handle) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byHandle[handle]
	if !ok {
		return Session{}, false
	}
	current, ok := r.sessions[identity]
	if !ok || current.session.Handle != handle {
		return Session{}, false
	}
	current.session.Online = false
	return current.session.clone(), true
}

// ActiveAdmin returns the most recently identified online admin.
func (r *Registry) ActiveAdmin() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active *entry
	for _, current := range r.sessions {
		if !current.session.IsAdmin || !current.session.Online {
			continue
		}
		if active == nil || current.seq > active.seq {
			active = current
		}
	}
	if active == nil {
		return Session{}, false
	}
	return active.session.clone(), true
}

// Find returns the session for identity, online or not.
func (r *Registry) Find(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[strings.TrimSpace(identity)]
	if !ok {
		return Session{}, false
	}
	return current.session.clone(), true
}

// AppendHistory appends message to identity's history.
//
// Unknown identities are logged and ignored.
func (r *Registry) AppendHistory(identity string, message Message) bool {
	identity = strings.TrimSpace(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[identity]
	if !ok {
		log.Printf("support: history append for unknown identity %q ignored", identity)
		return false
	}
	current.session.History = append(current.session.History, message)
	if overflow := len(current.session.History) - r.historyLimit; overflow > 0 {
		current.session.History = append([]Message(nil), current.session.History[overflow:]...)
	}
	return true
}

// Snapshot returns every session in first-identify order.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]Session, 0, len(r.order))
	for _, identity := range r.order {
		sessions = append(sessions, r.sessions[identity].session.clone())
	}
	return sessions
}

// Stats returns current occupancy counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Sessions: len(r.sessions)}
	for _, current := range r.sessions {
		if !current.session.Online {
			continue
		}
		stats.Online++
		if current.session.IsAdmin {
			stats.AdminsOnline++
		}
	}
	return stats
}
