// Package routing reacts to presence transitions and routes messages between
// customers and the active support admin.
//
// Inbound transport events arrive as typed commands. Every outbound effect is
// a targeted Event handed to a Sender after the registry lock is released.
package routing

import (
	"time"

	apperrors "github.com/louisbranch/supportdesk/internal/platform/errors"
	"github.com/louisbranch/supportdesk/internal/services/support/presence"
	"golang.org/x/text/language"
)

// EventType names an outbound event.
type EventType string

const (
	EventIdentified EventType = "support.identified"
	EventPresence   EventType = "support.presence"
	EventRoster     EventType = "support.roster"
	EventSelected   EventType = "support.selected"
	EventMessage    EventType = "support.message"
	EventSuperseded EventType = "support.superseded"
)

// Event is one outbound notification addressed to a single connection.
type Event struct {
	Type    EventType
	Payload any
}

// SessionPayload carries one session record.
type SessionPayload struct {
	Session presence.Session `json:"session"`
}

// RosterPayload carries the full roster snapshot.
type RosterPayload struct {
	Sessions []presence.Session `json:"sessions"`
}

// MessagePayload carries one routed message.
type MessagePayload struct {
	Message presence.Message `json:"message"`
}

// SupersededPayload tells a connection a newer one took over its identity.
type SupersededPayload struct{}

// Sender delivers events to live connections.
//
// Send is fire-and-forget: it must not block and silently ignores handles
// that are no longer connected. Close flushes already queued events and then
// terminates the connection.
type Sender interface {
	Send(handle presence.Handle, event Event)
	Close(handle presence.Handle)
}

// Caller is the identified side of a connection issuing a command.
type Caller struct {
	Handle  presence.Handle
	UserID  string
	Name    string
	IsAdmin bool
	Locale  language.Tag
}

// Identified reports whether the connection completed identify.
func (c Caller) Identified() bool {
	return c.UserID != ""
}

// Identify binds a connection to an identity.
type Identify struct {
	Handle  presence.Handle
	UserID  string
	Name    string
	IsAdmin bool
}

// Disconnect reports a closed connection.
type Disconnect struct {
	Handle presence.Handle
}

// SelectUser asks for one customer's record on behalf of an admin.
type SelectUser struct {
	Caller Caller
	UserID string
}

// Send routes one chat message. To names the target customer and is only
// used when the caller is an admin.
type Send struct {
	Caller Caller
	To     string
	Name   string
	Body   string
}

var (
	// ErrIdentityRequired rejects identify without a user id.
	ErrIdentityRequired = apperrors.New(apperrors.CodeIdentityRequired, "user_id is required")
	// ErrNotIdentified rejects commands from connections that have not identified.
	ErrNotIdentified = apperrors.New(apperrors.CodeNotIdentified, "connection must identify first")
	// ErrAdminRequired rejects admin-only commands from customers.
	ErrAdminRequired = apperrors.New(apperrors.CodeAdminRequired, "admin role required")
	// ErrTargetRequired rejects admin messages without a target customer.
	ErrTargetRequired = apperrors.New(apperrors.CodeTargetRequired, "user_id is required")
	// ErrBodyRequired rejects blank messages.
	ErrBodyRequired = apperrors.New(apperrors.CodeBodyRequired, "body is required")
	// ErrBodyTooLong rejects messages over MaxBodyRunes.
	ErrBodyTooLong = apperrors.New(apperrors.CodeBodyTooLong, "body must be at most 2000 characters")
)

// Option configures a Service.
type Option func(*Service)

// WithCloseSuperseded controls whether a connection replaced by a newer
// identify for the same identity is notified and closed.
func WithCloseSuperseded(enabled bool) Option {
	return func(s *Service) {
		s.closeSuperseded = enabled
	}
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service applies commands to the registry and emits the resulting events.
type Service struct {
	registry        *presence.Registry
	sender          Sender
	metrics         *metrics
	closeSuperseded bool
	now             func() time.Time
}

// NewService builds a Service over registry that emits through sender.
func NewService(registry *presence.Registry, sender Sender, opts ...Option) *Service {
	s := &Service{
		registry:        registry,
		sender:          sender,
		closeSuperseded: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(registry)
	return s
}

// Close releases the service's metric registrations. The service keeps
// routing after Close.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	return s.metrics.close()
}
