package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tophome-storefront/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "storefront:"

// StateRepository stores client state as Redis strings. Every write
// refreshes the key's TTL, so abandoned shoppers expire on their own.
type StateRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// Config holds Redis connection configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewStateRepository connects to Redis and verifies the connection
func NewStateRepository(ctx context.Context, cfg Config) (*StateRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStateRepositoryWithClient(client, defaultKeyPrefix, cfg.TTL), nil
}

// NewStateRepositoryWithClient wraps an existing client. A zero ttl keeps keys forever.
func NewStateRepositoryWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *StateRepository {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &StateRepository{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (r *StateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client state: %w", err)
	}
	return value, nil
}

func (r *StateRepository) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set client state: %w", err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}

func (r *StateRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *StateRepository) Close() error {
	return r.client.Close()
}

var _ domain.StateRepository = (*StateRepository)(nil)
