package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps codes under otp:<purpose>:<email> and lets Redis expire
// them.
type RedisStore struct {
	Redis *redis.Client
}

func redisKey(email, purpose string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, email)
}

func (s RedisStore) Save(ctx context.Context, email, purpose, code string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return errors.New("otp already expired")
	}
	return s.Redis.Set(ctx, redisKey(email, purpose), code, ttl).Err()
}

func (s RedisStore) Consume(ctx context.Context, email, purpose, code string, _ time.Time) (bool, error) {
	key := redisKey(email, purpose)
	stored, err := s.Redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if stored != code {
		return false, nil
	}

	// Only one concurrent verifier wins the delete.
	n, err := s.Redis.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (RedisStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func InitRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}
