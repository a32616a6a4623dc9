package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisLockTTL   = 10 * time.Second
	defaultRedisLockRetry = 25 * time.Millisecond
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps the snapshot as a JSON string under a single key. Saves
// take a short-lived lock key so writers in different processes are
// serialized.
type RedisStore[T any] struct {
	client   redis.UniversalClient
	key      string
	lockKey  string
	lockTTL  time.Duration
	lockWait time.Duration
	mu       sync.Mutex
}

func NewRedisStore[T any](client redis.UniversalClient, key string, options ...Option) *RedisStore[T] {
	key = strings.TrimSpace(key)
	o := applyOptions(options)
	return &RedisStore[T]{
		client:   client,
		key:      key,
		lockKey:  key + ":lock",
		lockTTL:  defaultRedisLockTTL,
		lockWait: o.lockTimeout,
	}
}

func (s *RedisStore[T]) Key() string { return s.key }

func (s *RedisStore[T]) Load(ctx context.Context) (T, bool, error) {
	var out T
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, false, nil
	}
	if err != nil {
		return out, false, fmt.Errorf("%w: get %s: %v", ErrLoad, s.key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, false, fmt.Errorf("%w: decode %s: %v", ErrLoad, s.key, err)
	}
	return out, true, nil
}

func (s *RedisStore[T]) Save(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrSave, s.key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseLockScript.Run(releaseCtx, s.client, []string{s.lockKey}, token).Err()
	}()

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrSave, s.key, err)
	}
	return nil
}

func (s *RedisStore[T]) acquire(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	token := uuid.NewString()
	for {
		ok, err := s.client.SetNX(ctx, s.lockKey, token, s.lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("%w: lock %s: %v", ErrSave, s.lockKey, err)
		}
		if ok {
			return token, nil
		}
		timer := time.NewTimer(defaultRedisLockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: lock %s: %w", ErrSave, s.lockKey, ctx.Err())
		case <-timer.C:
		}
	}
}
