package orderstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is "file" (default), "redis" or "memory".
	Backend string `yaml:"backend"`

	// Path of the JSON lines log for the file backend.
	Path string `yaml:"path"`

	// Fsync forces each file append to stable storage.
	Fsync bool `yaml:"fsync"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DefaultConfig returns the file backend writing to orders.json.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Path:    DefaultFilePath,
		Redis:   RedisConfig{Addr: "localhost:6379", Prefix: defaultRedisPrefix},
	}
}

// Open builds the configured store. The Redis backend is pinged so a bad
// address fails at startup rather than on the first order.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return OpenFileStore(cfg.Path, WithFsync(cfg.Fsync))

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		var opts []RedisOption
		if cfg.Redis.Prefix != "" {
			opts = append(opts, WithPrefix(cfg.Redis.Prefix))
		}
		return &ownedRedisStore{RedisStore: NewRedisStore(client, opts...), client: client}, nil

	case BackendMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown order store backend %q", cfg.Backend)
	}
}

// ownedRedisStore closes the client Open created.
type ownedRedisStore struct {
	*RedisStore
	client *redis.Client
}

func (s *ownedRedisStore) Close() error {
	_ = s.RedisStore.Close()
	return s.client.Close()
}
