package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/samber/lo"
)

// Inbound frame types.
const (
	frameJoin        = "join"
	frameJoinRoom    = "joinRoom"
	frameLeaveRoom   = "leaveRoom"
	frameSendMessage = "sendMessage"
	frameTyping      = "typing"
	frameMarkAsRead  = "markAsRead"
	frameSetStatus   = "setStatus"
)

// Outbound frame types.
const (
	frameReceiveMessage = "receiveMessage"
	framePresence       = "presence"
	frameOnlineUsers    = "onlineUsers"
	frameNewChatRoom    = "newChatRoom"
	frameMessageRead    = "messageRead"
	frameError          = "error"
)

// Error codes carried by error frames.
const (
	codeAlreadyRegistered = "already_registered"
	codeUnknownConnection = "unknown_connection"
	codeNotSubscribed     = "not_subscribed"
	codeInvalidStatus     = "invalid_status"
	codeUnauthorized      = "unauthorized"
	codeBadRequest        = "bad_request"
	codeRateLimited       = "rate_limited"
	codeInternal          = "internal"
)

// eventGatewayError is queued by the gateway itself; the core never emits it.
const eventGatewayError realtime.EventType = "gateway.error"

var errBadFrame = errors.New("malformed frame")

// Frame is the envelope of every websocket text message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinData struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type RoomData struct {
	ChatRoomID string `json:"chatRoomId"`
}

type SendMessageData struct {
	ChatRoomID string          `json:"chatRoomId"`
	Message    json.RawMessage `json:"message"`
}

type TypingData struct {
	UserID     string `json:"userId,omitempty"`
	ChatRoomID string `json:"chatRoomId"`
	IsTyping   bool   `json:"isTyping"`
}

type MarkAsReadData struct {
	UserID     string `json:"userId,omitempty"`
	MessageID  string `json:"messageId"`
	ChatRoomID string `json:"chatRoomId"`
}

type StatusData struct {
	UserID string `json:"userId,omitempty"`
	Status string `json:"status"`
}

type ReceiveMessageData struct {
	ChatRoomID string          `json:"chatRoomId"`
	SenderID   string          `json:"senderId"`
	Message    json.RawMessage `json:"message"`
	SentAt     int64           `json:"sentAt"`
}

type NewChatRoomData struct {
	Room json.RawMessage `json:"room"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeData unmarshals the frame payload into v.
func decodeData(f Frame, v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", errBadFrame, f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", errBadFrame, f.Type, err)
	}
	return nil
}

func requireField(frame, name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s requires %s", errBadFrame, frame, name)
	}
	return nil
}

// encodeEvent renders a queued event as an outbound frame.
func encodeEvent(ev realtime.Event) ([]byte, error) {
	var (
		typ  string
		data any
	)

	switch ev.Type {
	case realtime.EventReceiveMessage:
		typ = frameReceiveMessage
		data = ReceiveMessageData{
			ChatRoomID: string(ev.RoomID),
			SenderID:   string(ev.UserID),
			Message:    ev.Payload,
			SentAt:     ev.At.UnixMilli(),
		}
	case realtime.EventTypingChanged:
		typ = frameTyping
		data = TypingData{UserID: string(ev.UserID), ChatRoomID: string(ev.RoomID), IsTyping: ev.IsTyping}
	case realtime.EventPresenceChanged:
		typ = framePresence
		data = StatusData{UserID: string(ev.UserID), Status: string(ev.Status)}
	case realtime.EventPresenceSnapshot:
		typ = frameOnlineUsers
		data = lo.Map(ev.Users, func(u realtime.UserID, _ int) string { return string(u) })
	case realtime.EventRoomCreated:
		typ = frameNewChatRoom
		data = NewChatRoomData{Room: ev.Payload}
	case realtime.EventMessageRead:
		typ = frameMessageRead
		data = MarkAsReadData{UserID: string(ev.UserID), MessageID: ev.MessageID, ChatRoomID: string(ev.RoomID)}
	case eventGatewayError:
		typ = frameError
		data = ev.Payload
	default:
		return nil, fmt.Errorf("no frame for event %q", ev.Type)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return json.Marshal(Frame{Type: typ, Data: raw})
}

// errorEvent wraps an error frame so it travels through the outbox in order
// with everything else sent to the connection.
func errorEvent(code, message string) realtime.Event {
	payload, _ := json.Marshal(ErrorData{Code: code, Message: message})
	return realtime.Event{Type: eventGatewayError, Payload: payload}
}

// errorCode maps an inbound handling error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, realtime.ErrAlreadyRegistered):
		return codeAlreadyRegistered
	case errors.Is(err, realtime.ErrUnknownConnection):
		return codeUnknownConnection
	case errors.Is(err, realtime.ErrNotSubscribed):
		return codeNotSubscribed
	case errors.Is(err, realtime.ErrInvalidStatus):
		return codeInvalidStatus
	case errors.Is(err, ErrUnauthorized):
		return codeUnauthorized
	case errors.Is(err, errBadFrame), errors.Is(err, realtime.ErrInvalidUser):
		return codeBadRequest
	default:
		return codeInternal
	}
}
