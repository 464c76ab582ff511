package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

type HubOptions struct {
	// EchoToSender delivers a connection's own messages back to it.
	EchoToSender     bool
	MembershipShards int
	Presence         PresenceOptions
	Typing           TypingOptions
}

type session struct {
	mu       sync.Mutex
	id       ConnectionID
	user     UserID
	out      Outbox
	closed   bool
	evicting atomic.Bool
}

// Hub is the core side of the session gateway. It owns the tables and turns
// connection lifecycle and inbound frames into table updates and fan-out.
//
// Operations on one connection are serialized by that connection's session
// lock, so a disconnect cascade can never interleave with a join or message
// from the same connection.
type Hub struct {
	log        *slog.Logger
	opts       HubOptions
	registry   *Registry
	membership *Membership
	presence   *Presence
	typing     *Typing
	dispatcher *Dispatcher

	mu       sync.RWMutex
	sessions map[ConnectionID]*session
}

func NewHub(log *slog.Logger, opts HubOptions) *Hub {
	opts.Typing.norm()

	h := &Hub{
		log:      log,
		opts:     opts,
		sessions: make(map[ConnectionID]*session),
	}
	h.presence = NewPresence(log, opts.Presence)
	h.presence.AddListener(h)
	h.registry = NewRegistry(h.presence)
	h.membership = NewMembership(opts.MembershipShards)
	h.dispatcher = NewDispatcher(log, h.registry, h.membership, h.onDeliveryFailure)
	h.typing = NewTyping(log, opts.Typing, h)
	return h
}

func (h *Hub) Registry() *Registry        { return h.registry }
func (h *Hub) Membership() *Membership    { return h.membership }
func (h *Hub) Presence() *Presence        { return h.presence }
func (h *Hub) TypingCoordinator() *Typing { return h.typing }

// Run drives background maintenance until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info("Hub started")
	return h.typing.Run(ctx)
}

// Connect opens an unauthenticated session whose events go to out.
func (h *Hub) Connect(id ConnectionID, out Outbox) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[id]; ok {
		return ErrAlreadyRegistered
	}
	h.sessions[id] = &session{id: id, out: out}
	h.log.Debug("Connection opened", "conn_id", id, "sessions", len(h.sessions))
	return nil
}

// Authenticate binds the connection to user and sends it the list of users
// currently online, followed by one presence event for every user holding
// another status such as away.
func (h *Hub) Authenticate(id ConnectionID, user UserID) error {
	s, err := h.lock(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.user != "" {
		return ErrAlreadyRegistered
	}
	if err := h.registry.Register(id, user, s.out); err != nil {
		return err
	}
	s.user = user
	h.log.Info("Connection authenticated", "conn_id", id, "user_id", user)

	h.presence.WithSnapshot(func(statuses map[UserID]Status) {
		at := h.now()
		online := lo.Filter(lo.Keys(statuses), func(u UserID, _ int) bool { return statuses[u] == StatusOnline })
		events := []Event{{Type: EventPresenceSnapshot, Users: online, At: at}}
		for _, u := range lo.Keys(lo.OmitByValues(statuses, []Status{StatusOnline, StatusOffline})) {
			events = append(events, presenceChanged(u, statuses[u], at))
		}
		for _, ev := range events {
			if err := s.out.Push(ev); err != nil {
				h.log.Debug("Presence snapshot not delivered", "conn_id", id, "error", err)
				return
			}
		}
	})
	return nil
}

// Join subscribes the connection to room.
func (h *Hub) Join(id ConnectionID, room RoomID) error {
	s, err := h.lockAuthenticated(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := h.registry.attach(id, room); err != nil {
		return err
	}
	h.membership.Join(room, id)
	h.log.Debug("Joined room", "conn_id", id, "user_id", s.user, "room_id", room)
	return nil
}

// Leave unsubscribes the connection from room. The user's typing entry in room
// ends once none of their connections remain subscribed.
func (h *Hub) Leave(id ConnectionID, room RoomID) error {
	s, err := h.lockAuthenticated(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !h.membership.IsMember(room, id) {
		return nil
	}
	h.membership.Leave(room, id)
	h.registry.detach(id, room)
	h.stopTypingIfGone(s.user, room)
	h.log.Debug("Left room", "conn_id", id, "user_id", s.user, "room_id", room)
	return nil
}

// Message fans payload out to room. The connection must be subscribed.
func (h *Hub) Message(id ConnectionID, room RoomID, payload json.RawMessage) error {
	s, err := h.lockAuthenticated(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !h.membership.IsMember(room, id) {
		return ErrNotSubscribed
	}
	var exclude ConnectionID
	if !h.opts.EchoToSender {
		exclude = id
	}
	n := h.dispatcher.BroadcastToRoom(room, receiveMessage(room, s.user, payload, h.now()), exclude)
	h.log.Debug("Message broadcast", "conn_id", id, "room_id", room, "recipients", n)
	return nil
}

// Typing records whether the connection's user is typing in room. It is a
// no-op for rooms the connection has not joined.
func (h *Hub) Typing(id ConnectionID, room RoomID, isTyping bool) error {
	s, err := h.lockAuthenticated(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !h.membership.IsMember(room, id) {
		return nil
	}
	h.typing.SetTyping(room, s.user, isTyping, 0)
	return nil
}

// MarkRead tells room that the connection's user has read messageID.
func (h *Hub) MarkRead(id ConnectionID, room RoomID, messageID string) error {
	s, err := h.lockAuthenticated(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !h.membership.IsMember(room, id) {
		return ErrNotSubscribed
	}
	h.dispatcher.BroadcastToRoom(room, Event{
		Type:      EventMessageRead,
		RoomID:    room,
		UserID:    s.user,
		MessageID: messageID,
		At:        h.now(),
	}, "")
	return nil
}

// SetStatus applies a status reported by the client, such as away.
func (h *Hub) SetStatus(id ConnectionID, status Status) error {
	s, err := h.lockAuthenticated(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	_, err = h.presence.SetStatus(s.user, status)
	return err
}

// RoomCreated forwards a room created elsewhere to the live connections of
// its participants and returns how many connections received it.
func (h *Hub) RoomCreated(room json.RawMessage, participants []UserID) int {
	ev := Event{Type: EventRoomCreated, Payload: room, At: h.now()}
	n := 0
	for _, user := range lo.Uniq(participants) {
		n += h.dispatcher.SendToUser(user, ev)
	}
	return n
}

// Disconnect runs the disconnect cascade. Once it returns no event is queued
// for the connection again.
func (h *Hub) Disconnect(id ConnectionID) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return ErrUnknownConnection
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	if s.user != "" {
		rooms := h.membership.LeaveAll(id)
		if _, err := h.registry.Unregister(id); err != nil {
			h.log.Error("Registry out of sync on disconnect", "conn_id", id, "error", err)
		}
		if h.registry.Count(s.user) == 0 {
			h.typing.ClearUser(s.user)
		} else {
			for _, room := range rooms {
				h.stopTypingIfGone(s.user, room)
			}
		}
		h.log.Info("Connection closed", "conn_id", id, "user_id", s.user, "rooms", len(rooms))
	} else {
		h.log.Debug("Unauthenticated connection closed", "conn_id", id)
	}

	if c, ok := s.out.(interface{ Close() bool }); ok {
		c.Close()
	}
	return nil
}

// stopTypingIfGone ends user's typing in room once none of their connections
// is subscribed to it any more.
func (h *Hub) stopTypingIfGone(user UserID, room RoomID) {
	stillThere := lo.SomeBy(h.registry.Connections(user), func(c ConnectionID) bool {
		return h.membership.IsMember(room, c)
	})
	if !stillThere {
		h.typing.SetTyping(room, user, false, 0)
	}
}

// Sessions returns the number of open connections, authenticated or not.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// PresenceChanged implements PresenceListener by telling every connection.
func (h *Hub) PresenceChanged(user UserID, status Status) {
	h.dispatcher.BroadcastAll(presenceChanged(user, status, h.now()))
}

// TypingChanged implements TypingListener by telling the room.
func (h *Hub) TypingChanged(room RoomID, user UserID, isTyping bool) {
	h.dispatcher.BroadcastToRoom(room, typingChanged(room, user, isTyping, h.now()), "")
}

func (h *Hub) onDeliveryFailure(id ConnectionID, err error) {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok || !s.evicting.CompareAndSwap(false, true) {
		return
	}
	go h.evict(id, err)
}

func (h *Hub) evict(id ConnectionID, cause error) {
	h.log.Warn("Disconnecting connection after failed delivery", "conn_id", id, "error", cause)
	if err := h.Disconnect(id); err != nil {
		h.log.Debug("Eviction raced with disconnect", "conn_id", id, "error", err)
	}
}

func (h *Hub) lock(id ConnectionID) (*session, error) {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownConnection
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrUnknownConnection
	}
	return s, nil
}

func (h *Hub) lockAuthenticated(id ConnectionID) (*session, error) {
	s, err := h.lock(id)
	if err != nil {
		return nil, err
	}
	if s.user == "" {
		s.mu.Unlock()
		return nil, ErrUnknownConnection
	}
	return s, nil
}

func (h *Hub) now() time.Time {
	return h.opts.Typing.Clock()
}
