// Package presencestore mirrors presence transitions into Redis so services
// outside the gateway can read who is online and subscribe to changes.
//
// Keys:
//
//	chatnest:presence:{user}  status, expires after the configured TTL
//	chatnest:lastseen:{user}  RFC 3339 time the user went offline
//
// Every transition is also published on the chatnest:presence channel.
package presencestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "chatnest:presence:"
	lastSeenPrefix = "chatnest:lastseen:"
	Channel        = "chatnest:presence"

	defaultBuffer = 1024
)

// Store is the subset of the Redis client the mirror writes through.
type Store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type update struct {
	user   realtime.UserID
	status realtime.Status
	at     time.Time
}

// Change is the message published for every transition.
type Change struct {
	UserID string    `json:"userId"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Mirror implements realtime.PresenceListener. PresenceChanged only queues the
// transition; Run performs the Redis writes so the tracker lock is never held
// across network I/O. When the queue is full the transition is dropped and
// counted.
type Mirror struct {
	log     *slog.Logger
	store   Store
	ttl     time.Duration
	updates chan update
	now     func() time.Time

	dropped atomic.Uint64
}

func NewMirror(log *slog.Logger, store Store, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Mirror{
		log:     log,
		store:   store,
		ttl:     ttl,
		updates: make(chan update, defaultBuffer),
		now:     time.Now,
	}
}

func Key(user realtime.UserID) string {
	return keyPrefix + string(user)
}

func LastSeenKey(user realtime.UserID) string {
	return lastSeenPrefix + string(user)
}

// PresenceChanged implements realtime.PresenceListener.
func (m *Mirror) PresenceChanged(user realtime.UserID, status realtime.Status) {
	select {
	case m.updates <- update{user: user, status: status, at: m.now()}:
	default:
		m.dropped.Add(1)
		m.log.Warn("Presence mirror queue full; dropping transition", "user_id", user, "status", status)
	}
}

// Dropped counts transitions lost to a full queue.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// Run applies queued transitions and refreshes the keys of users still
// present every half TTL, until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	live := make(map[realtime.UserID]realtime.Status)
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Stopping presence mirror", "live", len(live))
			return nil
		case u := <-m.updates:
			m.apply(ctx, u)
			if u.status == realtime.StatusOffline {
				delete(live, u.user)
			} else {
				live[u.user] = u.status
			}
		case <-ticker.C:
			for user, status := range live {
				if err := m.store.Set(ctx, Key(user), string(status), m.ttl).Err(); err != nil {
					m.log.Warn("Presence refresh failed", "user_id", user, "error", err)
				}
			}
		}
	}
}

func (m *Mirror) apply(ctx context.Context, u update) {
	var err error
	if u.status == realtime.StatusOffline {
		err = m.store.Del(ctx, Key(u.user)).Err()
		if err == nil {
			err = m.store.Set(ctx, LastSeenKey(u.user), u.at.UTC().Format(time.RFC3339), 0).Err()
		}
	} else {
		err = m.store.Set(ctx, Key(u.user), string(u.status), m.ttl).Err()
	}
	if err != nil {
		m.log.Warn("Presence write failed", "user_id", u.user, "status", u.status, "error", err)
		return
	}

	payload, err := json.Marshal(Change{UserID: string(u.user), Status: string(u.status), At: u.at})
	if err != nil {
		return
	}
	if err := m.store.Publish(ctx, Channel, payload).Err(); err != nil {
		m.log.Warn("Presence publish failed", "user_id", u.user, "error", err)
	}
}

// Options builds the client options used by the gateway.
func Options(addr, password string, db int) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}
