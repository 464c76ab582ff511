package realtime

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

const DefaultMembershipShards = 32

type membershipShard struct {
	mu    sync.RWMutex
	rooms map[RoomID]map[ConnectionID]struct{}
}

// Membership tracks which live connections listen to which room. Rooms are
// spread over shards by hash so unrelated rooms never contend on one lock.
// It knows nothing about room existence or access control; an empty room is
// simply absent.
type Membership struct {
	shards []*membershipShard

	idxMu  sync.Mutex
	byConn map[ConnectionID]map[RoomID]struct{}
}

func NewMembership(shards int) *Membership {
	if shards <= 0 {
		shards = DefaultMembershipShards
	}
	m := &Membership{
		shards: make([]*membershipShard, shards),
		byConn: make(map[ConnectionID]map[RoomID]struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &membershipShard{rooms: make(map[RoomID]map[ConnectionID]struct{})}
	}
	return m
}

func (m *Membership) shardFor(room RoomID) *membershipShard {
	return m.shards[xxhash.Sum64String(string(room))%uint64(len(m.shards))]
}

// Join subscribes conn to room. Joining twice is a no-op.
func (m *Membership) Join(room RoomID, conn ConnectionID) {
	s := m.shardFor(room)
	s.mu.Lock()
	subs := s.rooms[room]
	if subs == nil {
		subs = make(map[ConnectionID]struct{})
		s.rooms[room] = subs
	}
	subs[conn] = struct{}{}
	s.mu.Unlock()

	m.idxMu.Lock()
	rooms := m.byConn[conn]
	if rooms == nil {
		rooms = make(map[RoomID]struct{})
		m.byConn[conn] = rooms
	}
	rooms[room] = struct{}{}
	m.idxMu.Unlock()
}

// Leave unsubscribes conn from room. Leaving a room never joined is a no-op.
func (m *Membership) Leave(room RoomID, conn ConnectionID) {
	m.removeFromRoom(room, conn)

	m.idxMu.Lock()
	if rooms := m.byConn[conn]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.byConn, conn)
		}
	}
	m.idxMu.Unlock()
}

// LeaveAll unsubscribes conn from every room and returns those rooms.
func (m *Membership) LeaveAll(conn ConnectionID) []RoomID {
	m.idxMu.Lock()
	rooms := lo.Keys(m.byConn[conn])
	delete(m.byConn, conn)
	m.idxMu.Unlock()

	for _, room := range rooms {
		m.removeFromRoom(room, conn)
	}
	return rooms
}

func (m *Membership) removeFromRoom(room RoomID, conn ConnectionID) {
	s := m.shardFor(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs := s.rooms[room]; subs != nil {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(s.rooms, room)
		}
	}
}

// Subscribers returns a snapshot of the connections subscribed to room.
func (m *Membership) Subscribers(room RoomID) []ConnectionID {
	s := m.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.rooms[room])
}

func (m *Membership) IsMember(room RoomID, conn ConnectionID) bool {
	s := m.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room][conn]
	return ok
}

// Rooms returns the rooms conn is subscribed to.
func (m *Membership) Rooms(conn ConnectionID) []RoomID {
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	return lo.Keys(m.byConn[conn])
}

// visit calls fn for each subscriber of room under the shard read lock. A
// LeaveAll that returned before visit started is fully observed; one that
// starts during the visit waits for it.
func (m *Membership) visit(room RoomID, fn func(ConnectionID)) {
	s := m.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()

	for conn := range s.rooms[room] {
		fn(conn)
	}
}
