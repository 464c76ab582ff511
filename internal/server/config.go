// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chatnest gateway.
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Netflix/go-env"
	"github.com/Tyrowin/chatnest/internal/realtime"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// OutboxConfig sizes the per-connection event queue.
type OutboxConfig struct {
	Size     int
	Overflow realtime.OverflowPolicy
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	Outbox          OutboxConfig
	LogLevel        string
	ShutdownTimeout time.Duration

	TypingTTL            time.Duration
	TypingSweepInterval  time.Duration
	MembershipShards     int
	EchoToSender         bool
	KeepAwayOnDisconnect bool

	// JWTSecret enables token verification on the join frame when set.
	JWTSecret string

	NATSURL           string
	RoomEventsSubject string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration
}

// environment mirrors Config in the shape go-env decodes.
type environment struct {
	Port                    string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillSeconds  int           `env:"RATE_LIMIT_REFILL_INTERVAL,default=1"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO"`
	OutboxSize              int           `env:"OUTBOX_SIZE,default=256"`
	OutboxOverflow          string        `env:"OUTBOX_OVERFLOW,default=disconnect"`
	TypingTTL               time.Duration `env:"TYPING_TTL,default=3s"`
	TypingSweepInterval     time.Duration `env:"TYPING_SWEEP_INTERVAL,default=1s"`
	MembershipShards        int           `env:"MEMBERSHIP_SHARDS,default=32"`
	EchoToSender            bool          `env:"ECHO_TO_SENDER,default=true"`
	KeepAwayOnDisconnect    bool          `env:"KEEP_AWAY_ON_DISCONNECT,default=true"`
	JWTSecret               string        `env:"JWT_SECRET"`
	NATSURL                 string        `env:"NATS_URL"`
	RoomEventsSubject       string        `env:"ROOM_EVENTS_SUBJECT,default=chatnest.rooms.created"`
	RedisAddr               string        `env:"REDIS_ADDR"`
	RedisPassword           string        `env:"REDIS_PASSWORD"`
	RedisDB                 int           `env:"REDIS_DB,default=0"`
	PresenceTTL             time.Duration `env:"PRESENCE_TTL,default=2m"`
	ShutdownTimeoutDuration time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

var (
	configMu      sync.RWMutex
	activeConfig  Config
	activeOrigins originPolicy
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Outbox: OutboxConfig{
			Size:     256,
			Overflow: realtime.OverflowDisconnect,
		},
		LogLevel:             "INFO",
		ShutdownTimeout:      10 * time.Second,
		TypingTTL:            realtime.DefaultTypingTTL,
		TypingSweepInterval:  realtime.DefaultTypingSweepInterval,
		MembershipShards:     realtime.DefaultMembershipShards,
		EchoToSender:         true,
		KeepAwayOnDisconnect: true,
		RoomEventsSubject:    "chatnest.rooms.created",
		PresenceTTL:          2 * time.Minute,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	if cfg.Outbox.Size <= 0 {
		cfg.Outbox.Size = defaults.Outbox.Size
	}

	if _, err := realtime.ParseOverflowPolicy(string(cfg.Outbox.Overflow)); err != nil {
		cfg.Outbox.Overflow = defaults.Outbox.Overflow
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = defaults.TypingTTL
	}

	if cfg.TypingSweepInterval <= 0 {
		cfg.TypingSweepInterval = defaults.TypingSweepInterval
	}

	if cfg.MembershipShards <= 0 {
		cfg.MembershipShards = defaults.MembershipShards
	}

	if cfg.RoomEventsSubject == "" {
		cfg.RoomEventsSubject = defaults.RoomEventsSubject
	}

	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = defaults.PresenceTTL
	}

	policy, normalizedOrigins := newOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activeOrigins = policy

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) Config {
	if cfg == nil {
		return sanitizeConfig(defaultConfig())
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to their defaults; malformed ones are an error.
func NewConfigFromEnv() (*Config, error) {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	overflow, err := realtime.ParseOverflowPolicy(e.OutboxOverflow)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:           e.Port,
		AllowedOrigins: parseOrigins(e.AllowedOrigins),
		MaxMessageSize: e.MaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          e.RateLimitBurst,
			RefillInterval: time.Duration(e.RateLimitRefillSeconds) * time.Second,
		},
		Outbox: OutboxConfig{
			Size:     e.OutboxSize,
			Overflow: overflow,
		},
		LogLevel:             e.LogLevel,
		ShutdownTimeout:      e.ShutdownTimeoutDuration,
		TypingTTL:            e.TypingTTL,
		TypingSweepInterval:  e.TypingSweepInterval,
		MembershipShards:     e.MembershipShards,
		EchoToSender:         e.EchoToSender,
		KeepAwayOnDisconnect: e.KeepAwayOnDisconnect,
		JWTSecret:            e.JWTSecret,
		NATSURL:              e.NATSURL,
		RoomEventsSubject:    e.RoomEventsSubject,
		RedisAddr:            e.RedisAddr,
		RedisPassword:        e.RedisPassword,
		RedisDB:              e.RedisDB,
		PresenceTTL:          e.PresenceTTL,
	}, nil
}

// HubOptions derives the core options from the configuration.
func (c Config) HubOptions() realtime.HubOptions {
	return realtime.HubOptions{
		EchoToSender:     c.EchoToSender,
		MembershipShards: c.MembershipShards,
		Presence: realtime.PresenceOptions{
			KeepAwayOnDisconnect: c.KeepAwayOnDisconnect,
		},
		Typing: realtime.TypingOptions{
			TTL:           c.TypingTTL,
			SweepInterval: c.TypingSweepInterval,
		},
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
