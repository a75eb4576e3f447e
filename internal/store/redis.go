package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dayforge/dayforge/internal/observability"
)

// moveTaskStatusScript atomically moves a task id between two bucket sets
// and two status sets in a single round trip.
const moveTaskStatusScript = `
redis.call("srem", KEYS[1], ARGV[1])
redis.call("sadd", KEYS[2], ARGV[1])
redis.call("srem", KEYS[3], ARGV[1])
redis.call("sadd", KEYS[4], ARGV[1])
return 1
`

// RedisKV implements KV over github.com/redis/go-redis/v9.
type RedisKV struct {
	client      *redis.Client
	moveTaskSHA string
	subs        map[string]*redis.PubSub
}

// NewRedisKV dials addr and preloads the one Lua script this substrate needs.
func NewRedisKV(addr, password string, db int) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	sha, err := client.ScriptLoad(ctx, moveTaskStatusScript).Result()
	if err != nil {
		return nil, fmt.Errorf("preload move-task-status script: %w", err)
	}

	return &RedisKV{client: client, moveTaskSHA: sha, subs: make(map[string]*redis.PubSub)}, nil
}

func (s *RedisKV) observe(start time.Time) {
	observability.RedisLatency.Observe(time.Since(start).Seconds())
}

func (s *RedisKV) HSet(ctx context.Context, key string, fields map[string]string) error {
	defer s.observe(time.Now())
	vals := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		vals[k] = v
	}
	return s.client.HSet(ctx, key, vals).Err()
}

func (s *RedisKV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	defer s.observe(time.Now())
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisKV) Del(ctx context.Context, key string) error {
	defer s.observe(time.Now())
	return s.client.Del(ctx, key).Err()
}

func (s *RedisKV) SAdd(ctx context.Context, key string, members ...string) error {
	defer s.observe(time.Now())
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *RedisKV) SRem(ctx context.Context, key string, members ...string) error {
	defer s.observe(time.Now())
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Err()
}

func (s *RedisKV) SMembers(ctx context.Context, key string) ([]string, error) {
	defer s.observe(time.Now())
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	defer s.observe(time.Now())
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	defer s.observe(time.Now())
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisKV) RPush(ctx context.Context, key, value string) error {
	defer s.observe(time.Now())
	return s.client.RPush(ctx, key, value).Err()
}

func (s *RedisKV) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	defer s.observe(time.Now())
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *RedisKV) LTrimFront(ctx context.Context, key string, maxLen int64) error {
	defer s.observe(time.Now())
	return s.client.LTrim(ctx, key, -maxLen, -1).Err()
}

func (s *RedisKV) Publish(ctx context.Context, channel, payload string) error {
	defer s.observe(time.Now())
	return s.client.Publish(ctx, channel, payload).Err()
}

func (s *RedisKV) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	out := make(chan string, 32)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			out <- msg.Payload
		}
	}()
	return &redisSubscription{ps: ps, out: out}, nil
}

func (s *RedisKV) MoveTaskStatus(ctx context.Context, taskID string, oldBucket, newBucket int, oldStatusKey, newStatusKey string) error {
	defer s.observe(time.Now())
	_, err := s.client.EvalSha(ctx, s.moveTaskSHA,
		[]string{BucketKey(oldBucket), BucketKey(newBucket), oldStatusKey, newStatusKey},
		taskID,
	).Result()
	if err == redis.Nil {
		return nil
	}
	return err
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan string
}

func (r *redisSubscription) Messages() <-chan string { return r.out }
func (r *redisSubscription) Close() error            { return r.ps.Close() }
