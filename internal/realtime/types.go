package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

type (
	ConnectionID string
	UserID       string
	RoomID       string
)

// Status is a user's presence as seen by other users.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
)

// ParseStatus validates a client supplied status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusOnline, StatusOffline, StatusAway:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// EventType names an outbound event. The gateway decides how each one is
// written on the wire.
type EventType string

const (
	EventReceiveMessage   EventType = "receiveMessage"
	EventTypingChanged    EventType = "typingChanged"
	EventPresenceChanged  EventType = "presenceChanged"
	EventPresenceSnapshot EventType = "presenceSnapshot"
	EventRoomCreated      EventType = "roomCreated"
	EventMessageRead      EventType = "messageRead"
)

// Event is one outbound notification queued for a connection. Only the fields
// relevant to Type are set.
type Event struct {
	Type      EventType
	RoomID    RoomID
	UserID    UserID
	IsTyping  bool
	Status    Status
	MessageID string
	Users     []UserID
	Payload   json.RawMessage
	At        time.Time
}

func receiveMessage(room RoomID, sender UserID, payload json.RawMessage, at time.Time) Event {
	return Event{Type: EventReceiveMessage, RoomID: room, UserID: sender, Payload: payload, At: at}
}

func typingChanged(room RoomID, user UserID, isTyping bool, at time.Time) Event {
	return Event{Type: EventTypingChanged, RoomID: room, UserID: user, IsTyping: isTyping, At: at}
}

func presenceChanged(user UserID, status Status, at time.Time) Event {
	return Event{Type: EventPresenceChanged, UserID: user, Status: status, At: at}
}
