package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL      = 10 * time.Second
	lockRetryGap = 25 * time.Millisecond
)

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStore keeps queues in Redis lists so several API instances share one
// view of every route key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStore{client: client, prefix: "matsched:"}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) queueKey(k string) string  { return r.prefix + "queue:" + k }
func (r *RedisStore) activeKey(k string) string { return r.prefix + "active:" + k }
func (r *RedisStore) lockKey(k string) string   { return r.prefix + "lock:" + k }

func (r *RedisStore) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lk := r.lockKey(key)
	for {
		ok, err := r.client.SetNX(ctx, lk, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(ctx, r.client, []string{lk}, token).Err(); err != nil {
					log.Printf("[QUEUE] action=unlock key=%s err=%v", key, err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryGap):
		}
	}
}

func (r *RedisStore) Enqueue(ctx context.Context, key string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.queueKey(key), raw).Err()
}

func (r *RedisStore) Head(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.LIndex(ctx, r.queueKey(key), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode queue head: %w", err)
	}
	return e, true, nil
}

func (r *RedisStore) ReplaceHead(ctx context.Context, key string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = r.client.LSet(ctx, r.queueKey(key), 0, raw).Err()
	if err != nil && err.Error() == "ERR no such key" {
		return nil
	}
	return err
}

func (r *RedisStore) Shift(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.LPop(ctx, r.queueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode queue entry: %w", err)
	}
	return e, true, nil
}

func (r *RedisStore) Entries(ctx context.Context, key string) ([]Entry, error) {
	raws, err := r.client.LRange(ctx, r.queueKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode queue entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisStore) IsActive(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.activeKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) SetActive(ctx context.Context, key string, active bool) error {
	if active {
		return r.client.Set(ctx, r.activeKey(key), "1", 0).Err()
	}
	return r.client.Del(ctx, r.activeKey(key)).Err()
}
