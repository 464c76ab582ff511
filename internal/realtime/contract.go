//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=mocks/mock_contract.go -package=mocks
package realtime

// Outbox receives events for one connection. Push must never block.
type Outbox interface {
	Push(ev Event) error
}

// CountObserver is told about every change of a user's live connection count.
// seq increases with every change so late deliveries can be recognised.
//
// Forget is called once a user has no connections and every count change
// issued for them, the last being seq, has been delivered.
type CountObserver interface {
	OnConnectionCountChange(user UserID, count int, seq uint64)
	Forget(user UserID, seq uint64)
}

// PresenceListener is notified once per actual status transition, in the
// order transitions happen. It is called with the tracker lock held and must
// not block or call back into Presence.
type PresenceListener interface {
	PresenceChanged(user UserID, status Status)
}

// TypingListener is told when a user starts or stops typing in a room. It is
// called with the coordinator lock held.
type TypingListener interface {
	TypingChanged(room RoomID, user UserID, isTyping bool)
}
