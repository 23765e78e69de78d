package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis snapshot backend.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TTL applies to actual and diff images only; baselines never expire.
	TTL time.Duration `mapstructure:"ttl"`
}

// RedisBackend keeps snapshots under {prefix}{kind}:{name} so that several
// CI workers can share one set of baselines.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(config *RedisConfig) (*RedisBackend, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address is required for %s backend", TypeRedis)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisBackendWithClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "visual:"
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (r *RedisBackend) buildKey(key Key) string {
	return r.keyPrefix + string(key.Kind) + ":" + key.Name
}

// EnsureLayout is a no-op; Redis has no directories.
func (r *RedisBackend) EnsureLayout(ctx context.Context) error {
	return nil
}

func (r *RedisBackend) Put(ctx context.Context, key Key, data []byte) error {
	var ttl time.Duration
	if key.Kind != KindBaseline {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, r.buildKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := r.client.Get(ctx, r.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve snapshot %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisBackend) Exists(ctx context.Context, key Key) (bool, error) {
	n, err := r.client.Exists(ctx, r.buildKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key Key) error {
	return r.client.Del(ctx, r.buildKey(key)).Err()
}

// List scans keys for kind. SCAN is used instead of KEYS to avoid blocking
// a shared server.
func (r *RedisBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	prefix := r.keyPrefix + string(kind) + ":"
	names := []string{}
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s snapshots: %w", kind, err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisBackend) GetInfo() *BackendInfo {
	return &BackendInfo{
		Name: "Redis",
		Type: TypeRedis,
		Capabilities: []string{
			"shared",
			"expiring-artifacts",
		},
		Status: "active",
	}
}

func (r *RedisBackend) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
