package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/rendis/stepflow/pkg/schema"
)

const defaultRedisPrefix = "stepflow:store:"

// RedisService keeps JSON-encoded store entries in Redis.
type RedisService struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisService.
type RedisOption func(*RedisService)

// WithPrefix sets the key prefix for entries.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisService) {
		s.prefix = prefix
	}
}

// WithTTL sets the expiration for entries. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisService) {
		s.ttl = ttl
	}
}

// NewRedisService connects to Redis at address.
func NewRedisService(address, password string, db int, opts ...RedisOption) *RedisService {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisServiceFromClient(rdb, opts...)
}

// NewRedisServiceFromClient creates a RedisService from an existing client.
func NewRedisServiceFromClient(client *backend.Client, opts ...RedisOption) *RedisService {
	s := &RedisService{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisService) key(key string) string {
	return s.prefix + key
}

// Get returns the entry stored under key.
func (s *RedisService) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		return nil, storageErr("GET", key, "redis", err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, storageErr("GET", key, "decode value", err)
	}
	return &Record{Key: key, Value: value}, nil
}

// Put stores record.Value under record.Key and returns the stored entry.
func (s *RedisService) Put(ctx context.Context, record Record) (*Record, error) {
	if record.Key == "" {
		return nil, schema.NewError(schema.ErrCodeStorage, "PUT: key is empty")
	}
	raw, err := json.Marshal(record.Value)
	if err != nil {
		return nil, storageErr("PUT", record.Key, "encode value", err)
	}
	if err := s.client.Set(ctx, s.key(record.Key), raw, s.ttl).Err(); err != nil {
		return nil, storageErr("PUT", record.Key, "redis", err)
	}

	var stored any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, storageErr("PUT", record.Key, "decode value", err)
	}
	return &Record{Key: record.Key, Value: stored}, nil
}

// Close releases the Redis connection pool.
func (s *RedisService) Close() error {
	return s.client.Close()
}

var _ Service = (*RedisService)(nil)
