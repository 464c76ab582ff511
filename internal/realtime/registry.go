package realtime

import (
	"sync"

	"github.com/samber/lo"
)

// inflight tracks the count changes of one user that have been issued but not
// yet delivered to the observer.
type inflight struct {
	pending int
	last    uint64
}

type connection struct {
	user  UserID
	out   Outbox
	rooms map[RoomID]struct{}
}

// Registry tracks authenticated connections and the user bound to each.
type Registry struct {
	mu       sync.RWMutex
	byConn   map[ConnectionID]*connection
	byUser   map[UserID]map[ConnectionID]struct{}
	seq      uint64
	inflight map[UserID]*inflight
	observer CountObserver
}

func NewRegistry(observer CountObserver) *Registry {
	return &Registry{
		byConn:   make(map[ConnectionID]*connection),
		byUser:   make(map[UserID]map[ConnectionID]struct{}),
		inflight: make(map[UserID]*inflight),
		observer: observer,
	}
}

// Register binds id to user and makes it reachable through out.
func (r *Registry) Register(id ConnectionID, user UserID, out Outbox) error {
	if user == "" {
		return ErrInvalidUser
	}

	r.mu.Lock()
	if _, ok := r.byConn[id]; ok {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r.byConn[id] = &connection{user: user, out: out, rooms: make(map[RoomID]struct{})}
	conns := r.byUser[user]
	if conns == nil {
		conns = make(map[ConnectionID]struct{})
		r.byUser[user] = conns
	}
	conns[id] = struct{}{}
	count := len(conns)
	seq := r.issue(user)
	r.mu.Unlock()

	r.notify(user, count, seq)
	return nil
}

// Unregister removes id and returns the rooms it had joined.
func (r *Registry) Unregister(id ConnectionID) ([]RoomID, error) {
	r.mu.Lock()
	c, ok := r.byConn[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownConnection
	}
	delete(r.byConn, id)
	count := 0
	if conns := r.byUser[c.user]; conns != nil {
		delete(conns, id)
		count = len(conns)
		if count == 0 {
			delete(r.byUser, c.user)
		}
	}
	seq := r.issue(c.user)
	r.mu.Unlock()

	r.notify(c.user, count, seq)
	return lo.Keys(c.rooms), nil
}

// issue hands out the next sequence number for a count change of user. The
// caller holds the write lock.
func (r *Registry) issue(user UserID) uint64 {
	r.seq++
	f := r.inflight[user]
	if f == nil {
		f = &inflight{}
		r.inflight[user] = f
	}
	f.pending++
	f.last = r.seq
	return r.seq
}

// notify delivers a count change, then lets the observer drop the user once
// nothing older can still arrive and no connection is left.
func (r *Registry) notify(user UserID, count int, seq uint64) {
	if r.observer == nil {
		r.settle(user)
		return
	}
	r.observer.OnConnectionCountChange(user, count, seq)
	if last, idle := r.settle(user); idle {
		r.observer.Forget(user, last)
	}
}

func (r *Registry) settle(user UserID) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.inflight[user]
	if f == nil {
		return 0, false
	}
	f.pending--
	if f.pending > 0 {
		return 0, false
	}
	delete(r.inflight, user)
	return f.last, len(r.byUser[user]) == 0
}

func (r *Registry) LookupUser(id ConnectionID) (UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byConn[id]
	if !ok {
		return "", false
	}
	return c.user, true
}

// Connections returns the live connections of user.
func (r *Registry) Connections(user UserID) []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.byUser[user])
}

// Count returns the number of live connections of user.
func (r *Registry) Count(user UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user])
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// attach records that id joined room.
func (r *Registry) attach(id ConnectionID, room RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[id]
	if !ok {
		return ErrUnknownConnection
	}
	c.rooms[room] = struct{}{}
	return nil
}

func (r *Registry) detach(id ConnectionID, room RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byConn[id]; ok {
		delete(c.rooms, room)
	}
}

func (r *Registry) outbox(id ConnectionID) (Outbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byConn[id]
	if !ok {
		return nil, false
	}
	return c.out, true
}

// visitUser calls fn for every connection of user while holding the read
// lock, so a concurrent Unregister either precedes or follows the whole visit.
func (r *Registry) visitUser(user UserID, fn func(ConnectionID, Outbox)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.byUser[user] {
		if c, ok := r.byConn[id]; ok {
			fn(id, c.out)
		}
	}
}

func (r *Registry) visitAll(fn func(ConnectionID, Outbox)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, c := range r.byConn {
		fn(id, c.out)
	}
}
