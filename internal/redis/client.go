package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"tenancy-service/internal/config"
)

// Client wraps the Redis client with application-specific methods
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing go-redis client
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection to Redis
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key prefixes
const (
	HostTenantKeyPrefix  = "tenancy:host:"         // host -> tenant id
	TenantHostsKeyPrefix = "tenancy:tenant-hosts:" // tenant id -> set of cached hosts
)

// GetHostTenant returns the cached tenant id for a host.
// The second result is false on a cache miss.
func (c *Client) GetHostTenant(ctx context.Context, host string) (uuid.UUID, bool, error) {
	value, err := c.rdb.Get(ctx, HostTenantKeyPrefix+strings.ToLower(host)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to get host mapping: %w", err)
	}

	tenantID, err := uuid.Parse(value)
	if err != nil {
		// Corrupt entry: drop it and report a miss
		c.rdb.Del(ctx, HostTenantKeyPrefix+strings.ToLower(host))
		return uuid.Nil, false, nil
	}
	return tenantID, true, nil
}

// SetHostTenant caches host -> tenant id and records the host under the tenant
// so InvalidateTenant can find it
func (c *Client) SetHostTenant(ctx context.Context, host string, tenantID uuid.UUID, ttl time.Duration) error {
	host = strings.ToLower(host)
	hostsKey := TenantHostsKeyPrefix + tenantID.String()

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, HostTenantKeyPrefix+host, tenantID.String(), ttl)
	pipe.SAdd(ctx, hostsKey, host)
	pipe.Expire(ctx, hostsKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache host mapping: %w", err)
	}
	return nil
}

// InvalidateTenant drops every cached host mapping of a tenant
func (c *Client) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	hostsKey := TenantHostsKeyPrefix + tenantID.String()

	hosts, err := c.rdb.SMembers(ctx, hostsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list cached hosts: %w", err)
	}

	keys := make([]string, 0, len(hosts)+1)
	for _, host := range hosts {
		keys = append(keys, HostTenantKeyPrefix+host)
	}
	keys = append(keys, hostsKey)

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tenant hosts: %w", err)
	}
	return nil
}
