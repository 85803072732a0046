package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBusConfig configures the optional cross-process bus. Grounded on
// the teacher's persistence.RedisCacheConfig (same host/port/password/DB
// shape, same connectivity probe on construction) but repurposed for
// pub/sub instead of key/value caching.
type RedisBusConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string // pub/sub channel; defaults to "corelan-events"
}

// RedisBus publishes every Emit call to a Redis pub/sub channel so a
// second process (e.g. a headless relay host and a GUI shell on the same
// LAN box) can observe the same event stream without sharing memory.
type RedisBus struct {
	client  *redis.Client
	ctx     context.Context
	channel string
	log     *zap.SugaredLogger
}

type wireEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// NewRedisBus connects to Redis and verifies the connection with a Ping,
// exactly as persistence.NewRedisCache did.
func NewRedisBus(cfg RedisBusConfig, log *zap.SugaredLogger) (*RedisBus, error) {
	channel := cfg.Channel
	if channel == "" {
		channel = "corelan-events"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis event bus: %w", err)
	}

	return &RedisBus{client: client, ctx: ctx, channel: channel, log: log}, nil
}

// Emit implements Bus. Publish failures are logged, never returned: the
// contract is the same as every other Emit call site in this module —
// an observability sink must never become a reason for the data plane
// to stop making progress.
func (b *RedisBus) Emit(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Warnw("redis bus: failed to marshal payload", "topic", topic, "error", err)
		return
	}
	body, err := json.Marshal(wireEvent{Topic: topic, Payload: raw})
	if err != nil {
		b.log.Warnw("redis bus: failed to marshal envelope", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 500*time.Millisecond)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		b.log.Warnw("redis bus: publish failed", "topic", topic, "error", err)
	}
}

// Close releases the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
