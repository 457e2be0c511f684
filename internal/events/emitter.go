package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	ChannelAiJobUpdated   = "aiJob:updated"
	ChannelAiJobCompleted = "aiJob:completed"
)

// Emitter pushes events to realtime subscribers. Delivery is advisory and
// best-effort: subscribers may be absent and publish failures are logged,
// never propagated.
type Emitter interface {
	Emit(ctx context.Context, channel string, payload any)
}

type RedisEmitter struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisEmitter(client *redis.Client, log *slog.Logger) *RedisEmitter {
	return &RedisEmitter{client: client, log: log}
}

func (e *RedisEmitter) Emit(ctx context.Context, channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("marshal event payload", "channel", channel, "error", err)
		return
	}
	if err := e.client.Publish(ctx, channel, data).Err(); err != nil {
		e.log.Error("publish event", "channel", channel, "error", err)
	}
}

// NoopEmitter is used in tests and when no realtime channel is configured.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, string, any) {}

var (
	_ Emitter = (*RedisEmitter)(nil)
	_ Emitter = NoopEmitter{}
)
