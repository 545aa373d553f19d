package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration. It returns nil
// when no address is configured.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Info("REDIS_ADDR not provided; message locks are process local")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

const messageLockPrefix = "ingest:lock:"

// releaseScript deletes the key only while it still carries the caller's
// owner value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// MessageLock serializes concurrent ingestion of the same message id across
// instances with SET NX. Keys expire after ttl so a crashed holder cannot
// wedge a message forever.
type MessageLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewMessageLock builds a lock on top of an existing client.
func NewMessageLock(client redis.UniversalClient, ttl time.Duration) *MessageLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &MessageLock{client: client, ttl: ttl}
}

// Acquire reports whether the caller now holds the lock for messageID. The
// returned owner token must be passed to Release.
func (l *MessageLock) Acquire(ctx context.Context, messageID string) (string, bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, messageLockPrefix+messageID, owner, l.ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return owner, true, nil
}

// Release drops the lock for messageID if owner still holds it. A lock that
// expired and was taken by someone else is left alone.
func (l *MessageLock) Release(ctx context.Context, messageID, owner string) error {
	return releaseScript.Run(ctx, l.client, []string{messageLockPrefix + messageID}, owner).Err()
}
