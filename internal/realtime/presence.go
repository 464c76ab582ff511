package realtime

import (
	"log/slog"
	"sync"
)

type PresenceOptions struct {
	// KeepAwayOnDisconnect keeps an explicit "away" after the last connection
	// closes. When false the user drops to offline and the override is cleared.
	KeepAwayOnDisconnect bool
}

type presenceEntry struct {
	status   Status
	count    int
	override Status
	seq      uint64
}

// Presence derives each user's status from their live connection count and
// any status they set explicitly.
//
// Entries outlive the user's last connection until the registry reports that
// no older count change can still arrive (Forget): the per-user sequence
// number is what lets a late change be recognised as stale. Users holding an
// explicit status keep their entry.
type Presence struct {
	mu        sync.Mutex
	users     map[UserID]*presenceEntry
	listeners []PresenceListener
	opts      PresenceOptions
	log       *slog.Logger
}

func NewPresence(log *slog.Logger, opts PresenceOptions) *Presence {
	return &Presence{
		users: make(map[UserID]*presenceEntry),
		opts:  opts,
		log:   log,
	}
}

func (p *Presence) AddListener(listeners ...PresenceListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, listeners...)
}

// SetStatus applies an explicit status. Away and offline install an override
// that survives connection count changes. Online clears the override, and the
// status falls back to what the connection count says: a user with no live
// connection is offline.
func (p *Presence) SetStatus(user UserID, status Status) (bool, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.entry(user)
	if status == StatusOnline {
		e.override = ""
	} else {
		e.override = status
	}
	return p.transition(user, e, p.derive(e)), nil
}

// OnConnectionCountChange implements CountObserver.
func (p *Presence) OnConnectionCountChange(user UserID, count int, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.entry(user)
	if seq != 0 && seq <= e.seq {
		p.log.Debug("Ignoring stale connection count", "user_id", user, "count", count, "seq", seq)
		return
	}
	e.seq = seq
	e.count = count

	if e.override == StatusAway && count == 0 && !p.opts.KeepAwayOnDisconnect {
		e.override = ""
	}
	p.transition(user, e, p.derive(e))
}

// Forget drops the entry of a user whose last count change was seq, provided
// it still shows them offline with no connection and no explicit status.
func (p *Presence) Forget(user UserID, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.users[user]
	if !ok || e.seq != seq || e.count != 0 || e.override != "" || e.status != StatusOffline {
		return
	}
	delete(p.users, user)
}

// Len returns the number of users the tracker holds an entry for.
func (p *Presence) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}

func (p *Presence) derive(e *presenceEntry) Status {
	switch {
	case e.override != "":
		return e.override
	case e.count > 0:
		return StatusOnline
	default:
		return StatusOffline
	}
}

func (p *Presence) CurrentStatus(user UserID) Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.users[user]; ok {
		return e.status
	}
	return StatusOffline
}

// Online returns the users currently shown as online.
func (p *Presence) Online() []UserID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []UserID
	for user, e := range p.users {
		if e.status == StatusOnline {
			out = append(out, user)
		}
	}
	return out
}

// Snapshot returns every user not currently offline with their status.
func (p *Presence) Snapshot() map[UserID]Status {
	var out map[UserID]Status
	p.WithSnapshot(func(statuses map[UserID]Status) { out = statuses })
	return out
}

// WithSnapshot calls fn with the users not currently offline while holding the
// tracker lock, so no transition is announced between the snapshot and
// whatever fn does with it. fn must not block or call back into Presence.
func (p *Presence) WithSnapshot(fn func(map[UserID]Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make(map[UserID]Status)
	for user, e := range p.users {
		if e.status != StatusOffline {
			statuses[user] = e.status
		}
	}
	fn(statuses)
}

func (p *Presence) entry(user UserID) *presenceEntry {
	e, ok := p.users[user]
	if !ok {
		e = &presenceEntry{status: StatusOffline}
		p.users[user] = e
	}
	return e
}

func (p *Presence) transition(user UserID, e *presenceEntry, next Status) bool {
	if e.status == next {
		return false
	}
	prev := e.status
	e.status = next
	p.log.Debug("Presence changed", "user_id", user, "from", prev, "to", next)
	for _, l := range p.listeners {
		l.PresenceChanged(user, next)
	}
	return true
}
