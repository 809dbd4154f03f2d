package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wearlink:oauth:attempt:"

// Redis stores attempts in redis so that any instance can finish a flow another one started.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Redis{
		rdb: rdb,
		ttl: cfg.TTL,
		now: time.Now,
	}
}

func (r *Redis) Save(ctx context.Context, a Attempt) (Attempt, error) {
	a.CreatedAt = r.now()
	a.ExpiresAt = a.CreatedAt.Add(r.ttl)

	val, err := json.Marshal(a)
	if err != nil {
		return Attempt{}, fmt.Errorf("serialize attempt: %w", err)
	}

	ok, err := r.rdb.SetNX(ctx, keyPrefix+a.State, val, r.ttl).Result()
	if err != nil {
		return Attempt{}, fmt.Errorf("store attempt in redis: %w", err)
	}
	if !ok {
		return Attempt{}, ErrConflict
	}

	return a, nil
}

func (r *Redis) Take(ctx context.Context, state string) (Attempt, error) {
	val, err := r.rdb.GetDel(ctx, keyPrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Attempt{}, ErrNotFound
		}

		return Attempt{}, fmt.Errorf("retrieve attempt from redis: %w", err)
	}

	var a Attempt
	if err = json.Unmarshal([]byte(val), &a); err != nil {
		return Attempt{}, fmt.Errorf("deserialize attempt: %w", err)
	}

	if a.Expired(r.now()) {
		return Attempt{}, ErrNotFound
	}

	return a, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
