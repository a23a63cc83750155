package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the mirror uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// MirrorConfig configures a RedisMirror.
type MirrorConfig struct {
	Client  RedisClient
	Key     string // holds the latest selection as JSON
	Channel string // receives every update as JSON ("null" on clear)
	Logger  *slog.Logger
}

// RedisMirror is a selection observer that mirrors the current value into
// Redis so out-of-process attribute displays can follow it.
type RedisMirror struct {
	cfg MirrorConfig
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedisMirror creates a mirror. Key and Channel default to
// "trafficmap:selection".
func NewRedisMirror(cfg MirrorConfig) *RedisMirror {
	if cfg.Key == "" {
		cfg.Key = "trafficmap:selection"
	}
	if cfg.Channel == "" {
		cfg.Channel = "trafficmap:selection"
	}
	return &RedisMirror{cfg: cfg}
}

// Run mirrors store updates until ctx is done. Redis errors are logged and
// do not stop the mirror.
func (m *RedisMirror) Run(ctx context.Context, store *Store) {
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case attrs, ok := <-updates:
			if !ok {
				return
			}
			if err := m.publish(ctx, attrs); err != nil {
				m.log().Warn("Failed to mirror selection", "error", err)
			}
		}
	}
}

func (m *RedisMirror) publish(ctx context.Context, attrs Attributes) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}

	if attrs == nil {
		if err := m.cfg.Client.Del(ctx, m.cfg.Key).Err(); err != nil {
			return fmt.Errorf("delete %s: %w", m.cfg.Key, err)
		}
	} else if err := m.cfg.Client.Set(ctx, m.cfg.Key, string(payload), 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", m.cfg.Key, err)
	}

	if err := m.cfg.Client.Publish(ctx, m.cfg.Channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", m.cfg.Channel, err)
	}
	return nil
}

func (m *RedisMirror) log() *slog.Logger {
	if m.cfg.Logger != nil {
		return m.cfg.Logger
	}
	return slog.Default()
}
