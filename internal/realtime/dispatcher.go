package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/Tyrowin/chatnest/internal/realtime"

// FailureHook is called when an event could not be queued for a connection.
// It runs inside the dispatch and must not block.
type FailureHook func(id ConnectionID, err error)

// Dispatcher delivers events to the outboxes of live connections. Delivery
// to one connection never affects delivery to another, and failures are
// never returned to the caller.
type Dispatcher struct {
	registry   *Registry
	membership *Membership
	onFailure  FailureHook
	log        *slog.Logger

	delivered metric.Int64Counter
	failures  metric.Int64Counter
}

func NewDispatcher(log *slog.Logger, registry *Registry, membership *Membership, onFailure FailureHook) *Dispatcher {
	meter := otel.Meter(meterName)

	delivered, err := meter.Int64Counter("chatnest.delivery.events",
		metric.WithDescription("Events queued for a connection"))
	if err != nil {
		log.Warn("Delivery counter unavailable", "error", err)
		delivered = noop.Int64Counter{}
	}
	failures, err := meter.Int64Counter("chatnest.delivery.failures",
		metric.WithDescription("Events that could not be queued for a connection"))
	if err != nil {
		log.Warn("Failure counter unavailable", "error", err)
		failures = noop.Int64Counter{}
	}

	return &Dispatcher{
		registry:   registry,
		membership: membership,
		onFailure:  onFailure,
		log:        log,
		delivered:  delivered,
		failures:   failures,
	}
}

// BroadcastToRoom queues ev for every subscriber of room except exclude (an
// empty exclude excludes nobody) and returns how many connections accepted it.
func (d *Dispatcher) BroadcastToRoom(room RoomID, ev Event, exclude ConnectionID) int {
	var stale []ConnectionID
	delivered := 0

	d.membership.visit(room, func(id ConnectionID) {
		if id == exclude {
			return
		}
		out, ok := d.registry.outbox(id)
		if !ok {
			stale = append(stale, id)
			return
		}
		if d.deliver(id, out, ev) {
			delivered++
		}
	})

	for _, id := range stale {
		d.repair(room, id)
	}
	return delivered
}

// SendToUser queues ev for every live connection of user.
func (d *Dispatcher) SendToUser(user UserID, ev Event) int {
	delivered := 0
	d.registry.visitUser(user, func(id ConnectionID, out Outbox) {
		if d.deliver(id, out, ev) {
			delivered++
		}
	})
	return delivered
}

// BroadcastAll queues ev for every registered connection.
func (d *Dispatcher) BroadcastAll(ev Event) int {
	delivered := 0
	d.registry.visitAll(func(id ConnectionID, out Outbox) {
		if d.deliver(id, out, ev) {
			delivered++
		}
	})
	return delivered
}

func (d *Dispatcher) deliver(id ConnectionID, out Outbox, ev Event) bool {
	attrs := metric.WithAttributes(attribute.String("event", string(ev.Type)))

	if err := out.Push(ev); err != nil {
		d.failures.Add(context.Background(), 1, attrs)
		d.log.Debug("Delivery failed", "conn_id", id, "event", ev.Type, "error", err)
		if d.onFailure != nil {
			d.onFailure(id, err)
		}
		return false
	}
	d.delivered.Add(context.Background(), 1, attrs)
	return true
}

// repair handles a subscriber that is no longer registered.
func (d *Dispatcher) repair(room RoomID, id ConnectionID) {
	if invariantChecks {
		panic(fmt.Sprintf("realtime: room %q references unregistered connection %q", room, id))
	}
	d.log.Error("Pruning unregistered subscriber", "room_id", room, "conn_id", id)
	d.membership.Leave(room, id)
}
