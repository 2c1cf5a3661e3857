package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"incident-detector/internal/model"
)

const redisKeyPrefix = "incident-detector:cooldown:"

// reserveScript compares and sets the last alert time in one server-side step.
// KEYS[1] entity key; ARGV[1] now (ms); ARGV[2] cooldown (ms).
// The key expires once the cooldown has elapsed.
var reserveScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
if last and (now - tonumber(last)) < cooldown then
  return 0
end
if cooldown > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// Redis keeps one key per entity holding the last alert time in Unix milliseconds.
type Redis struct {
	client redis.UniversalClient
	logger zerolog.Logger
}

// OpenRedis connects to the server named by a redis:// URL and pings it.
func OpenRedis(ctx context.Context, rawURL string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedis(client, logger), nil
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, logger zerolog.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger.With().Str("component", "redis-cooldown").Logger(),
	}
}

// Reserve implements Store.
func (r *Redis) Reserve(ctx context.Context, entityID string, now time.Time, cooldown time.Duration) (bool, error) {
	allowed, err := reserveScript.Run(ctx, r.client,
		[]string{redisKeyPrefix + entityID},
		now.UnixMilli(), cooldown.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve cooldown for %s: %w", entityID, err)
	}
	return allowed == 1, nil
}

// Last implements Store.
func (r *Redis) Last(ctx context.Context, entityID string) (*model.CooldownRecord, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+entityID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cooldown for %s: %w", entityID, err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt cooldown record for %s: %w", entityID, err)
	}
	return &model.CooldownRecord{EntityID: entityID, LastAlert: time.UnixMilli(ms)}, nil
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}
