package orderstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/voicebarista/runtime/order"
)

const (
	defaultRedisPrefix = "barista"
	orderStreamSuffix  = ":orders"
	orderField         = "order"
)

// RedisStore appends orders to a Redis stream. Stream entry IDs give every
// record a position in one total order shared by all writers.
type RedisStore struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix for the order stream.
// Default is "barista", giving the stream key "barista:orders".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed order store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithPrefix("cafe-42"),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// StreamKey returns the Redis key orders are appended to.
func (s *RedisStore) StreamKey() string {
	return s.prefix + orderStreamSuffix
}

// Backend returns "redis".
func (s *RedisStore) Backend() string {
	return BackendRedis
}

// Append adds o to the stream with XADD.
func (s *RedisStore) Append(ctx context.Context, o order.ConfirmedOrder) (Ack, error) {
	if s.closed.Load() {
		return Ack{}, writeErr(BackendRedis, ErrStoreClosed)
	}
	data, err := o.MarshalJSON()
	if err != nil {
		return Ack{}, writeErr(BackendRedis, fmt.Errorf("encoding order: %w", err))
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.StreamKey(),
		Values: map[string]interface{}{orderField: string(data)},
	}).Result()
	if err != nil {
		return Ack{}, writeErr(BackendRedis, fmt.Errorf("redis xadd failed: %w", err))
	}

	return Ack{Backend: BackendRedis, Ref: id, At: time.Now()}, nil
}

// ReadAll returns every order in the stream, oldest first.
func (s *RedisStore) ReadAll(ctx context.Context) ([]order.ConfirmedOrder, error) {
	msgs, err := s.client.XRange(ctx, s.StreamKey(), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrange failed: %w", err)
	}

	orders := make([]order.ConfirmedOrder, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values[orderField].(string)
		if !ok {
			return orders, fmt.Errorf("stream entry %s has no %s field", msg.ID, orderField)
		}
		var o order.ConfirmedOrder
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return orders, fmt.Errorf("stream entry %s: %w", msg.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// Close marks the store closed. The client is owned by the caller.
func (s *RedisStore) Close() error {
	s.closed.Store(true)
	return nil
}
