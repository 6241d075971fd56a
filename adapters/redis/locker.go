// Package redis provides a ports.Locker shared between processes through Redis.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/carebill/ports"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Client is the subset of *redis.Client the locker uses.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// LockerConfig tunes lock expiry and polling.
type LockerConfig struct {
	Prefix       string        // key prefix, default "carebill:lock:"
	TTL          time.Duration // lock expiry, default 2m
	PollInterval time.Duration // retry delay while the key is held, default 100ms
}

// Locker implements ports.Locker with SET NX PX and a token-checked release.
type Locker struct {
	client Client
	cfg    LockerConfig
}

// NewLocker creates a Redis-backed locker.
func NewLocker(client Client, cfg LockerConfig) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = "carebill:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Locker{client: client, cfg: cfg}
}

// Connect parses url, creates a client and pings it.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Lock polls until key is acquired or ctx ends. The lock expires after TTL
// even if the holder never releases it.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.cfg.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// Release must not depend on the caller's context, which may be done.
					rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					l.client.Eval(rctx, releaseScript, []string{redisKey}, token)
				})
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ports.ErrLockTimeout, key, ctx.Err())
		}
	}
}

var _ ports.Locker = (*Locker)(nil)
