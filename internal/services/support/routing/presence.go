package routing

import (
	"context"
	"log"
	"strings"

	"github.com/louisbranch/supportdesk/internal/services/support/presence"
)

// Identify records the connection as the live session for cmd.UserID.
//
// The identifying connection gets an acknowledgement. A customer coming online
// is announced to the active admin; an admin receives the full roster.
func (s *Service) Identify(ctx context.Context, cmd Identify) (presence.Session, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return presence.Session{}, ErrIdentityRequired
	}

	session, superseded := s.registry.Upsert(userID, cmd.Name, cmd.IsAdmin, cmd.Handle)
	s.metrics.identified(ctx, session.IsAdmin)
	log.Printf("support: %s online (admin=%t handle=%s)", session.Identity, session.IsAdmin, session.Handle)

	if superseded != "" {
		log.Printf("support: %s superseded handle %s", session.Identity, superseded)
		if s.closeSuperseded {
			s.sender.Send(superseded, Event{Type: EventSuperseded, Payload: SupersededPayload{}})
			s.sender.Close(superseded)
		}
	}

	s.sender.Send(session.Handle, Event{Type: EventIdentified, Payload: SessionPayload{Session: session}})

	if session.IsAdmin {
		s.sender.Send(session.Handle, Event{Type: EventRoster, Payload: RosterPayload{Sessions: s.registry.Snapshot()}})
		return session, nil
	}
	s.notifyAdmin(session)
	return session, nil
}

// Disconnect marks the session bound to cmd.Handle offline and, for
// customers, tells the active admin.
func (s *Service) Disconnect(ctx context.Context, cmd Disconnect) {
	session, ok := s.registry.MarkOffline(cmd.Handle)
	if !ok {
		return
	}
	log.Printf("support: %s offline (admin=%t)", session.Identity, session.IsAdmin)
	if session.IsAdmin {
		return
	}
	s.notifyAdmin(session)
}

func (s *Service) notifyAdmin(session presence.Session) {
	admin, ok := s.registry.ActiveAdmin()
	if !ok {
		return
	}
	s.sender.Send(admin.Handle, Event{Type: EventPresence, Payload: SessionPayload{Session: session}})
}
