package routing

import (
	"context"
	"errors"
	"testing"
)

func TestIdentifyRejectsBlankUserID(t *testing.T) {
	svc, registry, sender := newTestService(t)

	_, err := svc.Identify(context.Background(), Identify{Handle: "h1", UserID: "  "})
	if !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("err = %v, want %v", err, ErrIdentityRequired)
	}
	if got := registry.Stats().Sessions; got != 0 {
		t.Fatalf("sessions = %d, want 0", got)
	}
	if len(sender.events()) != 0 {
		t.Fatalf("unexpected events: %+v", sender.events())
	}
}

func TestIdentifyAcknowledgesConnection(t *testing.T) {
	svc, _, sender := newTestService(t)
	identify(t, svc, "h1", "u1", "Alice", false)

	acks := sender.eventsFor("h1", EventIdentified)
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	payload := acks[0].Payload.(SessionPayload)
	if payload.Session.Identity != "u1" || !payload.Session.Online {
		t.Fatalf("ack session = %+v", payload.Session)
	}
}

func TestAdminIdentifyReceivesRoster(t *testing.T) {
	svc, _, sender := newTestService(t)

	identify(t, svc, "ha", "a1", "Admin", true)
	rosters := sender.eventsFor("ha", EventRoster)
	if len(rosters) != 1 {
		t.Fatalf("rosters = %d, want 1", len(rosters))
	}
	sessions := rosters[0].Payload.(RosterPayload).Sessions
	if len(sessions) != 1 || sessions[0].Identity != "a1" {
		t.Fatalf("roster = %+v, want only the admin", sessions)
	}
}

func TestAdminIdentifyRosterIncludesPriorSessions(t *testing.T) {
	svc, _, sender := newTestService(t)
	identify(t, svc, "h1", "u1", "Alice", false)
	identify(t, svc, "h2", "u2", "Bob", false)
	svc.Disconnect(context.Background(), Disconnect{Handle: "h2"})

	identify(t, svc, "ha", "a1", "Admin", true)
	sessions := sender.eventsFor("ha", EventRoster)[0].Payload.(RosterPayload).Sessions
	if len(sessions) != 3 {
		t.Fatalf("roster size = %d, want 3", len(sessions))
	}
	if sessions[0].Identity != "u1" || !sessions[0].Online {
		t.Fatalf("roster[0] = %+v", sessions[0])
	}
	if sessions[1].Identity != "u2" || sessions[1].Online {
		t.Fatalf("roster[1] = %+v", sessions[1])
	}
}

func TestCustomerIdentifyNotifiesActiveAdmin(t *testing.T) {
	svc, _, sender := newTestService(t)
	identify(t, svc, "ha", "a1", "Admin", true)
	sender.reset()

	identify(t, svc, "h1", "u1", "Alice", false)

	notices := sender.eventsFor("ha", EventPresence)
	if len(notices) != 1 {
		t.Fatalf("presence notices = %d, want 1", len(notices))
	}
	session := notices[0].Payload.(SessionPayload).Session
	if session.Identity != "u1" || !session.Online || session.DisplayName != "Alice" {
		t.Fatalf("presence session = %+v", session)
	}
}

func TestCustomerIdentifyWithoutAdminSendsOnlyAck(t *testing.T) {
	svc, _, sender := newTestService(t)
	identify(t, svc, "h1", "u1", "Alice", false)

	events := sender.events()
	if len(events) != 1 || events[0].event.Type != EventIdentified {
		t.Fatalf("events = %+v, want only the ack", events)
	}
}

func TestAdminIdentifyDoesNotNotifyOtherAdmin(t *testing.T) {
	svc, _, sender := newTestService(t)
	identify(t, svc, "ha", "a1", "First", true)
	sender.reset()

	identify(t, svc, "hb", "a2", "Second", true)
	if notices := sender.eventsFor("ha", EventPresence); len(notices) != 0 {
		t.Fatalf("unexpected presence notices: %+v", notices)
	}
}

func TestDisconnectNotifiesAdminOfCustomerOffline(t *testing.T) {
	svc, registry, sender := newTestService(t)
	identify(t, svc, "ha", "a1", "Admin", true)
	identify(t, svc, "h1", "u1", "Alice", false)
	sender.reset()

	svc.Disconnect(context.Background(), Disconnect{Handle: "h1"})

	notices := sender.eventsFor("ha", EventPresence)
	if len(notices) != 1 {
		t.Fatalf("presence notices = %d, want 1", len(notices))
	}
	if session := notices[0].Payload.(SessionPayload).Session; session.Online {
		t.Fatalf("expected offline record, got %+v", session)
	}
	session, ok := registry.Find("u1")
	if !ok || session.Online {
		t.Fatalf("registry session = %+v, %v", session, ok)
	}
}

func TestDisconnectOfAdminSendsNothing(t *testing.T) {
	svc, _, sender := newTestService(t)
	identify(t, svc, "ha", "a1", "Admin", true)
	sender.reset()

	svc.Disconnect(context.Background(), Disconnect{Handle: "ha"})
	if events := sender.events(); len(events) != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestDisconnectStaleHandleIsNoop(t *testing.T) {
	svc, registry, sender := newTestService(t)
	identify(t, svc, "ha", "a1", "Admin", true)
	identify(t, svc, "h1", "u1", "Alice", false)
	identify(t, svc, "h2", "u1", "Alice", false)
	before := registry.Stats()
	sender.reset()

	svc.Disconnect(context.Background(), Disconnect{Handle: "h1"})
	svc.Disconnect(context.Background(), Disconnect{Handle: "unknown"})

	if after := registry.Stats(); after != before {
		t.Fatalf("stats changed: before %+v after %+v", before, after)
	}
	if events := sender.events(); len(events) != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestIdentifySupersedesPreviousConnection(t *testing.T) {
	svc, _, sender := newTestService(t)
	identify(t, svc, "h1", "u1", "Alice", false)
	sender.reset()

	identify(t, svc, "h2", "u1", "Alice", false)

	if got := sender.eventsFor("h1", EventSuperseded); len(got) != 1 {
		t.Fatalf("superseded notices = %d, want 1", len(got))
	}
	if len(sender.closed) != 1 || sender.closed[0] != "h1" {
		t.Fatalf("closed = %v, want [h1]", sender.closed)
	}
}

func TestIdentifyKeepsSupersededConnectionWhenDisabled(t *testing.T) {
	svc, _, sender := newTestService(t, WithCloseSuperseded(false))
	identify(t, svc, "h1", "u1", "Alice", false)
	identify(t, svc, "h2", "u1", "Alice", false)

	if got := sender.eventsFor("h1", EventSuperseded); len(got) != 0 {
		t.Fatalf("unexpected superseded notices: %+v", got)
	}
	if len(sender.closed) != 0 {
		t.Fatalf("closed = %v, want none", sender.closed)
	}
}

func TestScenarioAdminRosterThenCustomerPresence(t *testing.T) {
	svc, _, sender := newTestService(t)

	identify(t, svc, "ha", "a1", "Admin", true)
	roster := sender.eventsFor("ha", EventRoster)
	if len(roster) != 1 {
		t.Fatalf("rosters = %d, want 1", len(roster))
	}
	for _, session := range roster[0].Payload.(RosterPayload).Sessions {
		if !session.IsAdmin {
			t.Fatalf("roster should hold no customers yet: %+v", session)
		}
	}

	identify(t, svc, "h1", "u1", "Alice", false)
	notices := sender.eventsFor("ha", EventPresence)
	if len(notices) != 1 || notices[0].Payload.(SessionPayload).Session.Identity != "u1" {
		t.Fatalf("presence notices = %+v", notices)
	}
}

func TestAdminOnSwitchedConnectionGoesOfflineWhenItCloses(t *testing.T) {
	svc, registry, sender := newTestService(t)
	ctx := context.Background()

	identify(t, svc, "h1", "a1", "First", true)
	svc.Disconnect(ctx, Disconnect{Handle: "h1"})
	identify(t, svc, "h1", "a2", "Second", true)
	identify(t, svc, "h2", "a1", "First", true)
	svc.Disconnect(ctx, Disconnect{Handle: "h2"})
	svc.Disconnect(ctx, Disconnect{Handle: "h1"})

	if session, _ := registry.Find("a2"); session.Online {
		t.Fatalf("a2 should be offline after h1 closed: %+v", session)
	}

	customer := identify(t, svc, "hc", "u1", "Alice", false)
	sender.reset()
	if err := svc.Route(ctx, Send{Caller: customer, Body: "hi"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := sender.eventsFor("h1", EventMessage); len(got) != 0 {
		t.Fatalf("messages to closed h1 = %d, want 0", len(got))
	}
	if got := sender.eventsFor("hc", EventMessage); len(got) != 1 {
		t.Fatalf("offline replies = %d, want 1", len(got))
	}
}
