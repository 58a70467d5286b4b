package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/ec-stock-reservation/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "stock:"

var ErrCounterNotFound = errors.New("stock counter not found")

// NewClient opens a client against the configured Redis instance.
func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		// Retrying a DECRBY whose reply was lost would apply it twice.
		MaxRetries: -1,
	})
}

// CounterStore is the stock counter key-space. Every operation is a single
// atomic Redis command and returns the post-operation value.
type CounterStore struct {
	client  goredis.Cmdable
	timeout time.Duration
}

func NewCounterStore(client goredis.Cmdable, timeout time.Duration) *CounterStore {
	return &CounterStore{client: client, timeout: timeout}
}

// Key returns the counter key of a product.
func Key(productID int64) string {
	return keyPrefix + strconv.FormatInt(productID, 10)
}

func (s *CounterStore) Get(ctx context.Context, productID int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v, err := s.client.Get(ctx, Key(productID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, ErrCounterNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", Key(productID), err)
	}
	return v, nil
}

func (s *CounterStore) Set(ctx context.Context, productID, value int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, Key(productID), value, 0).Err(); err != nil {
		return fmt.Errorf("SET %s: %w", Key(productID), err)
	}
	return nil
}

func (s *CounterStore) IncrBy(ctx context.Context, productID, delta int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v, err := s.client.IncrBy(ctx, Key(productID), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("INCRBY %s: %w", Key(productID), err)
	}
	return v, nil
}

func (s *CounterStore) DecrBy(ctx context.Context, productID, delta int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v, err := s.client.DecrBy(ctx, Key(productID), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("DECRBY %s: %w", Key(productID), err)
	}
	return v, nil
}

// Delete removes a counter; used only to undo a failed product registration.
func (s *CounterStore) Delete(ctx context.Context, productID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, Key(productID)).Err(); err != nil {
		return fmt.Errorf("DEL %s: %w", Key(productID), err)
	}
	return nil
}

func (s *CounterStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
