package validate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// DialRedis parses cfg.URL, connects and pings.
func DialRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisClient is the subset of the go-redis API the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps cooldown timestamps in Redis so several processes share
// one history. Entries expire after ttl.
type RedisStore struct {
	rdb    RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store writing keys as "<prefix>cooldown:<key>".
// A ttl of zero keeps entries forever.
func NewRedisStore(rdb RedisClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + "cooldown:" + key
}

func (s *RedisStore) Last(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get failed: %w", err)
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid cooldown timestamp %q: %w", val, err)
	}
	return time.Unix(0, nanos), true, nil
}

func (s *RedisStore) Touch(ctx context.Context, key string, at time.Time) error {
	if err := s.rdb.Set(ctx, s.redisKey(key), strconv.FormatInt(at.UnixNano(), 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}
