// Package realtime implements the live side of ChatNest: which connections are
// open, which rooms they listen to, who is online or typing, and the fan-out
// that delivers events to exactly those connections.
//
// The package is transport agnostic. The websocket gateway in internal/server
// drives a Hub and drains each connection's Outbox; nothing in here performs
// network I/O.
//
// Every table (Registry, Membership, Presence, Typing) guards itself with its
// own lock. Cascades such as a disconnect are sequenced through a per-session
// lock in the Hub rather than through one global lock. Locks are always taken
// in the order session, typing or presence, membership shard, registry, outbox.
package realtime
