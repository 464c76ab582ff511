// Package roomfeed forwards room-created notifications published on NATS by
// the room service to the live connections of the room's participants.
package roomfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/nats-io/nats.go"
)

// Notifier receives decoded notifications. *realtime.Hub implements it.
type Notifier interface {
	RoomCreated(room json.RawMessage, participants []realtime.UserID) int
}

// Notification is the payload published for every new room.
type Notification struct {
	Room         json.RawMessage   `json:"room"`
	Participants []realtime.UserID `json:"participants"`
}

var ErrInvalidNotification = errors.New("invalid room notification")

type Config struct {
	URL     string
	Subject string
	Name    string
}

// Subscriber owns a NATS connection and one subscription on the room subject.
type Subscriber struct {
	log      *slog.Logger
	notifier Notifier
	nc       *nats.Conn
	sub      *nats.Subscription
}

// Connect dials NATS and subscribes to cfg.Subject.
func Connect(log *slog.Logger, cfg Config, notifier Notifier) (*Subscriber, error) {
	if cfg.URL == "" || cfg.Subject == "" {
		return nil, errors.New("roomfeed: url and subject are required")
	}
	if cfg.Name == "" {
		cfg.Name = "chatnest-gateway"
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("roomfeed: connect: %w", err)
	}

	s := &Subscriber{log: log, notifier: notifier, nc: nc}
	sub, err := nc.Subscribe(cfg.Subject, s.Handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("roomfeed: subscribe %s: %w", cfg.Subject, err)
	}
	s.sub = sub
	log.Info("Room feed subscribed", "subject", cfg.Subject)
	return s, nil
}

// New returns a Subscriber without a connection, for feeding messages to
// Handle directly.
func New(log *slog.Logger, notifier Notifier) *Subscriber {
	return &Subscriber{log: log, notifier: notifier}
}

// Handle is the NATS message handler.
func (s *Subscriber) Handle(msg *nats.Msg) {
	n, err := Decode(msg.Data)
	if err != nil {
		s.log.Warn("Discarding room notification", "subject", msg.Subject, "error", err)
		return
	}
	delivered := s.notifier.RoomCreated(n.Room, n.Participants)
	s.log.Debug("Room notification forwarded", "participants", len(n.Participants), "connections", delivered)
}

// Decode parses and validates a notification payload.
func Decode(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if len(n.Room) == 0 || string(n.Room) == "null" {
		return Notification{}, fmt.Errorf("%w: missing room", ErrInvalidNotification)
	}
	if len(n.Participants) == 0 {
		return Notification{}, fmt.Errorf("%w: no participants", ErrInvalidNotification)
	}
	return n, nil
}

// Close drains the subscription and the connection.
func (s *Subscriber) Close() error {
	if s.nc == nil {
		return nil
	}
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	return s.nc.Drain()
}
