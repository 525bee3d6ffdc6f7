package internal

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds Redis connection configuration for the L2 tier.
type ClientConfig struct {
	// Connection settings
	RedisURL      string `json:"redis_url"`      // redis://, rediss:// or unix:// URL
	RedisPassword string `json:"redis_password"` // Overrides any password embedded in the URL
	RedisDB       int    `json:"redis_db"`       // Overrides the database index from the URL when >= 0

	// Pool settings
	MaxConnections    int           `json:"max_connections"`    // Maximum number of pooled connections
	ConnectionTimeout time.Duration `json:"connection_timeout"` // Timeout for establishing a connection
	ReadTimeout       time.Duration `json:"read_timeout"`       // Timeout for socket reads
	WriteTimeout      time.Duration `json:"write_timeout"`      // Timeout for socket writes

	// Cache settings
	DefaultTTL time.Duration `json:"default_ttl"` // Default time-to-live for cache entries

	// Resilience settings
	RetryConfig *RetryConfig `json:"retry_config"` // Retry behavior for transient failures
}

// RetryConfig defines retry behavior with exponential backoff.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`  // Maximum number of attempts per operation
	InitialDelay time.Duration `json:"initial_delay"` // Delay before the first retry
	MaxDelay     time.Duration `json:"max_delay"`     // Upper bound on the backoff delay
	Multiplier   float64       `json:"multiplier"`    // Backoff multiplier
	Jitter       bool          `json:"jitter"`        // Whether to add random jitter
	RetryableOps []string      `json:"retryable_ops"` // Operations that should be retried
}

// DefaultRetryConfig returns a RetryConfig with sensible default values.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableOps: []string{"ping", "get", "set", "del", "exists", "pttl", "dbsize"},
	}
}

// DefaultClientConfig returns a ClientConfig with sensible default values.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RedisURL:          "redis://localhost:6379/0",
		RedisDB:           -1,
		MaxConnections:    10,
		ConnectionTimeout: 5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		DefaultTTL:        time.Hour,
		RetryConfig:       DefaultRetryConfig(),
	}
}

// RedisClientInterface defines the operations the cache engine needs from
// the L2 tier. It exists so the engine can be tested against a mock.
type RedisClientInterface interface {
	Ping(ctx context.Context) error
	PingWithRetry(ctx context.Context) error
	SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetWithRetry(ctx context.Context, key string) (string, error)
	DelWithRetry(ctx context.Context, keys ...string) error
	ExistsWithRetry(ctx context.Context, keys ...string) (int64, error)
	PTTLWithRetry(ctx context.Context, key string) (time.Duration, error)
	DBSize(ctx context.Context) (int64, error)
	FlushDB(ctx context.Context) error
	Client() *redis.Client
	Config() *ClientConfig
	Close() error
}

// RedisClient wraps the go-redis client with retry and timeout handling.
type RedisClient struct {
	client *redis.Client
	config *ClientConfig
}

// NewRedisClient creates a Redis client from the provided configuration.
// The URL is parsed eagerly so malformed configuration fails before any
// network activity.
func NewRedisClient(config *ClientConfig) (*RedisClient, error) {
	if config == nil {
		config = DefaultClientConfig()
	}

	if err := validateClientConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL %q: %w", config.RedisURL, err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	opts.PoolSize = config.MaxConnections
	opts.DialTimeout = config.ConnectionTimeout
	opts.ReadTimeout = config.ReadTimeout
	opts.WriteTimeout = config.WriteTimeout

	return &RedisClient{
		client: redis.NewClient(opts),
		config: config,
	}, nil
}

// ValidRedisURL reports whether the URL uses a supported scheme and parses.
func ValidRedisURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("redis URL cannot be empty")
	}
	if !strings.HasPrefix(rawURL, "redis://") &&
		!strings.HasPrefix(rawURL, "rediss://") &&
		!strings.HasPrefix(rawURL, "unix://") {
		return fmt.Errorf("redis URL must use redis://, rediss:// or unix:// scheme, got %q", rawURL)
	}
	if _, err := redis.ParseURL(rawURL); err != nil {
		return fmt.Errorf("redis URL %q is malformed: %w", rawURL, err)
	}
	return nil
}

// validateClientConfig validates the Redis configuration parameters.
func validateClientConfig(config *ClientConfig) error {
	if err := ValidRedisURL(config.RedisURL); err != nil {
		return err
	}

	if config.RedisDB > 15 {
		return fmt.Errorf("redis database must be between 0 and 15, got %d", config.RedisDB)
	}

	if config.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive, got %d", config.MaxConnections)
	}

	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive, got %v", config.ConnectionTimeout)
	}

	if config.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", config.ReadTimeout)
	}

	if config.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %v", config.WriteTimeout)
	}

	if config.DefaultTTL < 0 {
		return fmt.Errorf("default TTL cannot be negative, got %v", config.DefaultTTL)
	}

	if config.RetryConfig != nil {
		if err := validateRetryConfig(config.RetryConfig); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	return nil
}

// validateRetryConfig validates the retry configuration parameters.
func validateRetryConfig(config *RetryConfig) error {
	if config.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative, got %d", config.MaxAttempts)
	}

	if config.InitialDelay < 0 {
		return fmt.Errorf("initial delay cannot be negative, got %v", config.InitialDelay)
	}

	if config.MaxDelay < 0 {
		return fmt.Errorf("max delay cannot be negative, got %v", config.MaxDelay)
	}

	if config.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", config.Multiplier)
	}

	if config.InitialDelay > config.MaxDelay {
		return fmt.Errorf("initial delay (%v) cannot be greater than max delay (%v)", config.InitialDelay, config.MaxDelay)
	}

	return nil
}

// Ping checks that the Redis server is responsive.
func (rc *RedisClient) Ping(ctx context.Context) error {
	pong, err := rc.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected ping response: %s", pong)
	}
	return nil
}

// Client returns the underlying go-redis client for direct access.
func (rc *RedisClient) Client() *redis.Client {
	return rc.client
}

// Config returns the client configuration.
func (rc *RedisClient) Config() *ClientConfig {
	return rc.config
}

// Close closes the Redis client connection.
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// PoolInfo returns connection pool statistics for diagnostics.
func (rc *RedisClient) PoolInfo() map[string]interface{} {
	stats := rc.client.PoolStats()
	return map[string]interface{}{
		"url":         rc.config.RedisURL,
		"pool_size":   rc.config.MaxConnections,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

// IsRetryableError reports whether an error should trigger a retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	// Network-level failures that usually clear up on retry.
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"network is unreachable",
		"no route to host",
		"broken pipe",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	// Redis server states that resolve on their own.
	for _, s := range []string{"loading", "busy", "tryagain"} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

// isOperationRetryable checks whether the named operation is in the
// configured retryable set.
func (rc *RedisClient) isOperationRetryable(operation string) bool {
	if rc.config.RetryConfig == nil {
		return false
	}
	for _, op := range rc.config.RetryConfig.RetryableOps {
		if op == operation {
			return true
		}
	}
	return false
}

// backoffDelay calculates the delay before the next retry attempt.
func (rc *RedisClient) backoffDelay(attempt int) time.Duration {
	cfg := rc.config.RetryConfig
	if cfg == nil {
		return time.Second
	}

	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay += rand.Float64() * 0.1 * delay
	}
	return time.Duration(delay)
}

// executeWithRetry runs fn with exponential backoff for retryable failures.
func (rc *RedisClient) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	if !rc.isOperationRetryable(operation) || rc.config.RetryConfig == nil {
		return fn()
	}

	var lastErr error
	maxAttempts := rc.config.RetryConfig.MaxAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return err
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rc.backoffDelay(attempt)):
		}
	}

	return fmt.Errorf("operation %q failed after %d attempts: %w", operation, maxAttempts, lastErr)
}

// PingWithRetry performs a ping with retry logic.
func (rc *RedisClient) PingWithRetry(ctx context.Context) error {
	return rc.executeWithRetry(ctx, "ping", func() error {
		return rc.Ping(ctx)
	})
}

// SetWithRetry performs a SET with expiration and retry logic.
func (rc *RedisClient) SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return rc.executeWithRetry(ctx, "set", func() error {
		return rc.client.Set(ctx, key, value, expiration).Err()
	})
}

// GetWithRetry performs a GET with retry logic.
func (rc *RedisClient) GetWithRetry(ctx context.Context, key string) (string, error) {
	var result string
	err := rc.executeWithRetry(ctx, "get", func() error {
		val, err := rc.client.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

// DelWithRetry performs a DEL with retry logic.
func (rc *RedisClient) DelWithRetry(ctx context.Context, keys ...string) error {
	return rc.executeWithRetry(ctx, "del", func() error {
		return rc.client.Del(ctx, keys...).Err()
	})
}

// ExistsWithRetry performs an EXISTS with retry logic.
func (rc *RedisClient) ExistsWithRetry(ctx context.Context, keys ...string) (int64, error) {
	var result int64
	err := rc.executeWithRetry(ctx, "exists", func() error {
		val, err := rc.client.Exists(ctx, keys...).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

// PTTLWithRetry reports the remaining lifetime of key with retry logic.
// Redis returns -1 for keys without an expiry and -2 for missing keys;
// both pass through unchanged.
func (rc *RedisClient) PTTLWithRetry(ctx context.Context, key string) (time.Duration, error) {
	var result time.Duration
	err := rc.executeWithRetry(ctx, "pttl", func() error {
		val, err := rc.client.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

// DBSize returns the number of keys in the selected database.
func (rc *RedisClient) DBSize(ctx context.Context) (int64, error) {
	var result int64
	err := rc.executeWithRetry(ctx, "dbsize", func() error {
		val, err := rc.client.DBSize(ctx).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

// FlushDB removes all keys from the selected database.
func (rc *RedisClient) FlushDB(ctx context.Context) error {
	return rc.client.FlushDB(ctx).Err()
}
