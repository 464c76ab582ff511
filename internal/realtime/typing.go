package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultTypingTTL           = 3 * time.Second
	DefaultTypingSweepInterval = time.Second
)

type TypingOptions struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         func() time.Time
}

func (o *TypingOptions) norm() {
	if o.TTL <= 0 {
		o.TTL = DefaultTypingTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultTypingSweepInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Typing keeps, per room, the users currently typing. Each entry expires
// unless refreshed; expired entries are purged on read and by Run, and every
// purge is announced as a stop.
type Typing struct {
	mu       sync.Mutex
	rooms    map[RoomID]map[UserID]time.Time
	byUser   map[UserID]map[RoomID]struct{}
	opts     TypingOptions
	listener TypingListener
	log      *slog.Logger
}

func NewTyping(log *slog.Logger, opts TypingOptions, listener TypingListener) *Typing {
	opts.norm()
	return &Typing{
		rooms:    make(map[RoomID]map[UserID]time.Time),
		byUser:   make(map[UserID]map[RoomID]struct{}),
		opts:     opts,
		listener: listener,
		log:      log,
	}
}

// SetTyping starts (refreshing the expiry) or stops user typing in room. A
// ttl of zero uses the configured default.
func (t *Typing) SetTyping(room RoomID, user UserID, isTyping bool, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.opts.Clock()
	expiry, active := t.rooms[room][user]

	if !isTyping {
		if active {
			t.remove(room, user)
		}
		return
	}

	if active && !now.Before(expiry) {
		t.remove(room, user)
		active = false
	}
	if ttl <= 0 {
		ttl = t.opts.TTL
	}
	t.put(room, user, now.Add(ttl))
	if !active {
		t.emit(room, user, true)
	}
}

// ActiveTypists returns the users typing in room after purging expired entries.
func (t *Typing) ActiveTypists(room RoomID) []UserID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.purgeRoom(room, t.opts.Clock())
	return lo.Keys(t.rooms[room])
}

// ClearUser drops every entry of user, announcing a stop for each room.
func (t *Typing) ClearUser(user UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for room := range t.byUser[user] {
		t.remove(room, user)
	}
}

// Sweep purges every expired entry.
func (t *Typing) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.opts.Clock()
	for room := range t.rooms {
		t.purgeRoom(room, now)
	}
}

// Run sweeps on the configured interval until ctx is done.
func (t *Typing) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Debug("Stopping typing sweeper")
			return nil
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func (t *Typing) purgeRoom(room RoomID, now time.Time) {
	for user, expiry := range t.rooms[room] {
		if !now.Before(expiry) {
			t.remove(room, user)
		}
	}
}

func (t *Typing) put(room RoomID, user UserID, expiry time.Time) {
	users := t.rooms[room]
	if users == nil {
		users = make(map[UserID]time.Time)
		t.rooms[room] = users
	}
	users[user] = expiry

	rooms := t.byUser[user]
	if rooms == nil {
		rooms = make(map[RoomID]struct{})
		t.byUser[user] = rooms
	}
	rooms[room] = struct{}{}
}

func (t *Typing) remove(room RoomID, user UserID) {
	if users := t.rooms[room]; users != nil {
		delete(users, user)
		if len(users) == 0 {
			delete(t.rooms, room)
		}
	}
	if rooms := t.byUser[user]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(t.byUser, user)
		}
	}
	t.emit(room, user, false)
}

func (t *Typing) emit(room RoomID, user UserID, isTyping bool) {
	if t.listener != nil {
		t.listener.TypingChanged(room, user, isTyping)
	}
}
