package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 30 * time.Minute

// SweepLockName names the lock that keeps one maintenance sweep per environment.
func SweepLockName(env string) string {
	env = strings.TrimSpace(env)
	if env == "" {
		env = "local"
	}
	return "maintenance-sweep:" + env
}

// Lock guards a maintenance sweep across cron-worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	// Holder reports who owns the lock right now, empty when free.
	Holder(ctx context.Context) (string, error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock stores "<instance>/<token>" under key so a skipped replica can
// log which instance is sweeping.
type RedisLock struct {
	client   redisStore
	key      string
	ttl      time.Duration
	instance string
	token    string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration, instance string) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if instance == "" {
		instance = "unknown"
	}
	return &RedisLock{client: client, key: key, ttl: ttl, instance: instance}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.instance + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lock if this instance still owns it. An expired lock
// that another replica re-acquired is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	current, err := l.read(ctx)
	if err != nil {
		return err
	}
	token := l.token
	l.token = ""
	if current != token {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	current, err := l.read(ctx)
	if err != nil || current == "" {
		return "", err
	}
	instance, _, _ := strings.Cut(current, "/")
	return instance, nil
}

func (l *RedisLock) read(ctx context.Context) (string, error) {
	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", l.key, err)
	}
	return value, nil
}
