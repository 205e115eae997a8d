package cache

import (
	"context"
	"encoding/json"
	"time"

	"stock-signals/internal/domain"

	"github.com/redis/go-redis/v9"
)

func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// SignalCache holds the most recent combined signal per symbol with a TTL so
// the HTTP surface can serve repeats without re-running the pipeline.
type SignalCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSignalCache(client *redis.Client, ttl time.Duration) *SignalCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SignalCache{client: client, ttl: ttl}
}

func signalKey(symbol string) string {
	return "signal:latest:" + symbol
}

func (c *SignalCache) Get(ctx context.Context, symbol string) (*domain.CombinedSignal, error) {
	payload, err := c.client.Get(ctx, signalKey(symbol)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var signal domain.CombinedSignal
	if err := json.Unmarshal(payload, &signal); err != nil {
		return nil, err
	}
	return &signal, nil
}

func (c *SignalCache) Set(ctx context.Context, signal domain.CombinedSignal) error {
	payload, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, signalKey(signal.Symbol), payload, c.ttl).Err()
}

func (c *SignalCache) Invalidate(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, signalKey(symbol)).Err()
}
