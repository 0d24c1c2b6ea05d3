package routing

import (
	"context"
	"log"

	"github.com/louisbranch/supportdesk/internal/services/support/presence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/louisbranch/supportdesk/internal/services/support/routing"

const (
	directionToAdmin    = "to_admin"
	directionToCustomer = "to_customer"
)

type metrics struct {
	identifiedCount metric.Int64Counter
	routedCount     metric.Int64Counter
	droppedCount    metric.Int64Counter
	fallbackCount   metric.Int64Counter

	onlineRegistration metric.Registration
}

// newMetrics registers routing instruments on the global meter provider.
// Instruments that fail to register fall back to no-ops.
func newMetrics(registry *presence.Registry) *metrics {
	meter := otel.Meter(meterName)
	m := &metrics{
		identifiedCount: int64Counter(meter, "support.sessions.identified", "Identify calls accepted."),
		routedCount:     int64Counter(meter, "support.messages.routed", "Messages delivered to a live connection."),
		droppedCount:    int64Counter(meter, "support.messages.dropped", "Admin messages dropped for offline customers."),
		fallbackCount:   int64Counter(meter, "support.fallback.replies", "Automatic replies sent while no admin was online."),
	}

	online, err := meter.Int64ObservableUpDownCounter("support.sessions.online",
		metric.WithDescription("Sessions currently online."),
	)
	if err != nil {
		log.Printf("support: register support.sessions.online: %v", err)
		return m
	}
	m.onlineRegistration, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		stats := registry.Stats()
		observer.ObserveInt64(online, int64(stats.Online-stats.AdminsOnline), metric.WithAttributes(attribute.Bool("admin", false)))
		observer.ObserveInt64(online, int64(stats.AdminsOnline), metric.WithAttributes(attribute.Bool("admin", true)))
		return nil
	}, online)
	if err != nil {
		log.Printf("support: observe support.sessions.online: %v", err)
	}
	return m
}

// close unregisters the online sessions callback.
func (m *metrics) close() error {
	if m == nil || m.onlineRegistration == nil {
		return nil
	}
	err := m.onlineRegistration.Unregister()
	m.onlineRegistration = nil
	return err
}

func int64Counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Printf("support: register %s: %v", name, err)
		return noop.Int64Counter{}
	}
	return counter
}

func (m *metrics) identified(ctx context.Context, isAdmin bool) {
	m.identifiedCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("admin", isAdmin)))
}

func (m *metrics) routed(ctx context.Context, direction string) {
	m.routedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

func (m *metrics) dropped(ctx context.Context) {
	m.droppedCount.Add(ctx, 1)
}

func (m *metrics) fallback(ctx context.Context) {
	m.fallbackCount.Add(ctx, 1)
}
