package routing

import (
	"context"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/louisbranch/supportdesk/internal/services/support/presence"
)

// MaxBodyRunes caps a single message body.
const MaxBodyRunes = 2000

// SelectUser sends the requested customer's record back to the admin caller.
// Unknown identities produce no event.
func (s *Service) SelectUser(ctx context.Context, cmd SelectUser) error {
	if !cmd.Caller.Identified() {
		return ErrNotIdentified
	}
	if !cmd.Caller.IsAdmin {
		return ErrAdminRequired
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return ErrTargetRequired
	}

	session, ok := s.registry.Find(userID)
	if !ok {
		log.Printf("support: select for unknown user %q ignored", userID)
		return nil
	}
	s.sender.Send(cmd.Caller.Handle, Event{Type: EventSelected, Payload: SessionPayload{Session: session}})
	return nil
}

// Route delivers a chat message.
//
// Admin messages go to the named customer when online and are appended to
// that customer's history; otherwise they are dropped. Customer messages go
// to the active admin and are appended to the sender's history. With no
// admin online the sender gets the offline reply instead, which is not
// recorded.
func (s *Service) Route(ctx context.Context, cmd Send) error {
	if !cmd.Caller.Identified() {
		return ErrNotIdentified
	}
	body, err := normalizeBody(cmd.Body)
	if err != nil {
		return err
	}

	name := cmd.Caller.Name
	if name == "" {
		name = strings.TrimSpace(cmd.Name)
	}
	if name == "" {
		name = cmd.Caller.UserID
	}

	if cmd.Caller.IsAdmin {
		return s.routeToCustomer(ctx, cmd, name, body)
	}
	s.routeToAdmin(ctx, cmd, name, body)
	return nil
}

func (s *Service) routeToCustomer(ctx context.Context, cmd Send, name, body string) error {
	target := strings.TrimSpace(cmd.To)
	if target == "" {
		return ErrTargetRequired
	}
	session, ok := s.registry.Find(target)
	if !ok || !session.Online {
		log.Printf("support: message from %s to offline user %q dropped", cmd.Caller.UserID, target)
		s.metrics.dropped(ctx)
		return nil
	}

	message := presence.Message{
		UserID:  session.Identity,
		Name:    name,
		Body:    body,
		IsAdmin: true,
		SentAt:  s.now().UTC(),
	}
	s.sender.Send(session.Handle, Event{Type: EventMessage, Payload: MessagePayload{Message: message}})
	s.registry.AppendHistory(session.Identity, message)
	s.metrics.routed(ctx, directionToCustomer)
	return nil
}

func (s *Service) routeToAdmin(ctx context.Context, cmd Send, name, body string) {
	now := s.now().UTC()
	admin, ok := s.registry.ActiveAdmin()
	if !ok {
		reply := offlineReply(cmd.Caller.UserID, cmd.Caller.Locale, now)
		s.sender.Send(cmd.Caller.Handle, Event{Type: EventMessage, Payload: MessagePayload{Message: reply}})
		s.metrics.fallback(ctx)
		return
	}

	message := presence.Message{
		UserID:  cmd.Caller.UserID,
		Name:    name,
		Body:    body,
		IsAdmin: false,
		SentAt:  now,
	}
	s.sender.Send(admin.Handle, Event{Type: EventMessage, Payload: MessagePayload{Message: message}})
	s.registry.AppendHistory(cmd.Caller.UserID, message)
	s.metrics.routed(ctx, directionToAdmin)
}

func normalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrBodyRequired
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return "", ErrBodyTooLong
	}
	return body, nil
}
