// Package presence owns the process-wide session registry.
//
// Sessions are keyed by a stable identity and survive disconnects (marked
// offline) for the life of the process. Callers only ever receive value
// snapshots; all mutation happens behind the registry lock.
package presence

import "time"

// Handle identifies one live transport connection.
type Handle string

// Message is one entry of a customer's conversation transcript.
//
// UserID is the customer identity the conversation belongs to, regardless of
// which side wrote the message.
type Message struct {
	UserID  string    `json:"user_id"`
	Name    string    `json:"name"`
	Body    string    `json:"body"`
	IsAdmin bool      `json:"is_admin"`
	SentAt  time.Time `json:"sent_at"`
}

// Session is a snapshot of one identity's presence and history.
type Session struct {
	Identity     string    `json:"user_id"`
	DisplayName  string    `json:"name"`
	IsAdmin      bool      `json:"is_admin"`
	Online       bool      `json:"online"`
	Handle       Handle    `json:"-"`
	History      []Message `json:"messages"`
	IdentifiedAt time.Time `json:"-"`
}

func (s Session) clone() Session {
	history := make([]Message, len(s.History))
	copy(history, s.History)
	s.History = history
	return s
}
