package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inferstack/aicache/internal"
)

// compressedMarker prefixes stored values that were gzip-compressed. JSON
// payloads can never start with this sequence.
const compressedMarker = "gz:"

// RedisCacheConfig configures the generic two-tier engine.
type RedisCacheConfig struct {
	RedisURL          string        `json:"redis_url"`
	RedisPassword     string        `json:"redis_password"`
	RedisDB           int           `json:"redis_db"` // -1 keeps the database index from the URL
	MaxConnections    int           `json:"max_connections"`
	ConnectionTimeout time.Duration `json:"connection_timeout"`
	DefaultTTL        time.Duration `json:"default_ttl"`

	EnableL1Cache bool `json:"enable_l1_cache"`
	L1CacheSize   int  `json:"l1_cache_size"`

	// Values larger than CompressionThreshold bytes are gzip-compressed at
	// CompressionLevel (1-9) before the Redis write. Zero threshold
	// disables compression.
	CompressionThreshold int `json:"compression_threshold"`
	CompressionLevel     int `json:"compression_level"`
}

// DefaultRedisCacheConfig returns a RedisCacheConfig with sensible defaults.
func DefaultRedisCacheConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		RedisURL:             "redis://localhost:6379/0",
		RedisDB:              -1,
		MaxConnections:       10,
		ConnectionTimeout:    5 * time.Second,
		DefaultTTL:           time.Hour,
		EnableL1Cache:        true,
		L1CacheSize:          1000,
		CompressionThreshold: 4096,
		CompressionLevel:     6,
	}
}

// RedisCache is the generic cache engine: a Redis L2 tier with an optional
// in-process L1 tier in front of it. Reads consult L1 first; an L2 hit
// populates L1. Writes go to both tiers, and a failed Redis write degrades
// silently to an L1-only write when L1 is enabled.
type RedisCache struct {
	id     string
	client internal.RedisClientInterface
	l1     *MemoryCache
	config *RedisCacheConfig
	state  atomic.Int32
	stats  statsRecorder
	logger *zap.Logger
}

// NewRedisCache creates the engine without touching the network. Call
// Connect to establish the Redis connection.
func NewRedisCache(config *RedisCacheConfig, logger *zap.Logger) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisCacheConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := validateEngineConfig(config); err != nil {
		return nil, err
	}

	clientCfg := internal.DefaultClientConfig()
	clientCfg.RedisURL = config.RedisURL
	clientCfg.RedisPassword = config.RedisPassword
	clientCfg.RedisDB = config.RedisDB
	if config.MaxConnections > 0 {
		clientCfg.MaxConnections = config.MaxConnections
	}
	if config.ConnectionTimeout > 0 {
		clientCfg.ConnectionTimeout = config.ConnectionTimeout
	}
	clientCfg.DefaultTTL = config.DefaultTTL

	client, err := internal.NewRedisClient(clientCfg)
	if err != nil {
		return nil, NewConfigurationError("failed to create Redis client", err)
	}

	var l1 *MemoryCache
	if config.EnableL1Cache {
		l1 = NewMemoryCache(config.L1CacheSize, config.DefaultTTL, logger)
	}

	return &RedisCache{
		id:     uuid.NewString(),
		client: client,
		l1:     l1,
		config: config,
		logger: logger,
	}, nil
}

// NewRedisCacheWithDependencies creates an engine with injected
// dependencies for testing.
func NewRedisCacheWithDependencies(client internal.RedisClientInterface, l1 *MemoryCache, config *RedisCacheConfig, logger *zap.Logger) *RedisCache {
	if config == nil {
		config = DefaultRedisCacheConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		id:     uuid.NewString(),
		client: client,
		l1:     l1,
		config: config,
		logger: logger,
	}
}

func validateEngineConfig(config *RedisCacheConfig) error {
	if err := internal.ValidRedisURL(config.RedisURL); err != nil {
		return NewValidationError("redis_url", err.Error())
	}
	if config.DefaultTTL < 0 {
		return NewValidationError("default_ttl", fmt.Sprintf("TTL cannot be negative, got %v", config.DefaultTTL))
	}
	if config.EnableL1Cache && config.L1CacheSize <= 0 {
		return NewValidationError("l1_cache_size", fmt.Sprintf("cache size must be positive, got %d", config.L1CacheSize))
	}
	if config.CompressionThreshold > 0 && (config.CompressionLevel < 1 || config.CompressionLevel > 9) {
		return NewValidationError("compression_level", fmt.Sprintf("compression level must be between 1 and 9, got %d", config.CompressionLevel))
	}
	return nil
}

// ID returns the unique identifier of this instance, used by the registry
// and in diagnostic output.
func (rc *RedisCache) ID() string {
	return rc.id
}

// State returns the current connection state.
func (rc *RedisCache) State() ConnState {
	return ConnState(rc.state.Load())
}

// Connect implements Connector. It performs the Redis handshake with a
// bounded timeout; on failure the engine transitions to the degraded
// memory-only state and reports false with the cause.
func (rc *RedisCache) Connect(ctx context.Context) (bool, error) {
	if rc.State() == StateClosed {
		return false, NewConnectionError("cache is closed", nil)
	}

	rc.state.Store(int32(StateConnecting))

	timeout := rc.config.ConnectionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := rc.client.PingWithRetry(pingCtx); err != nil {
		rc.state.Store(int32(StateDegraded))
		return false, NewConnectionError("redis handshake failed", err)
	}

	rc.state.Store(int32(StateConnected))
	return true, nil
}

// Ping implements Pinger against the L2 tier.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.PingWithRetry(ctx)
}

// Get retrieves the value for key into dest. L1 is consulted first; an L2
// hit populates L1 before returning. Transient Redis failures surface as a
// miss plus an error counter, never as an error to the caller.
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if key == "" {
		return false, NewValidationError("key", "key cannot be empty")
	}
	start := time.Now()

	if rc.l1 != nil {
		var raw json.RawMessage
		if found, err := rc.l1.Get(ctx, key, &raw); err == nil && found {
			if err := json.Unmarshal(raw, dest); err != nil {
				rc.stats.recordError()
				return false, NewSerializationError(key, "failed to decode L1 value", err)
			}
			rc.stats.recordHit(1, time.Since(start))
			return true, nil
		}
	}

	if rc.State() != StateConnected {
		rc.stats.recordMiss(time.Since(start))
		return false, nil
	}

	data, err := rc.client.GetWithRetry(ctx, key)
	if err != nil {
		rc.stats.recordMiss(time.Since(start))
		if !errors.Is(err, redis.Nil) {
			rc.stats.recordError()
			rc.logger.Warn("redis read failed", zap.String("key", key), zap.Error(err))
		}
		return false, nil
	}

	payload, err := rc.decompress(data)
	if err != nil {
		rc.stats.recordError()
		return false, NewSerializationError(key, "failed to decompress cached value", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		rc.stats.recordError()
		return false, NewSerializationError(key, "failed to decode cached value", err)
	}

	if rc.l1 != nil {
		// Promote to L1 so the next read skips the network. The L1 copy
		// must not outlive the Redis entry, so its TTL is capped at the
		// remaining one. PTTL reports -1 for keys without an expiry and
		// -2 for keys that vanished between the GET and the PTTL.
		ttl := rc.config.DefaultTTL
		if remaining, pttlErr := rc.client.PTTLWithRetry(ctx, key); pttlErr == nil {
			switch {
			case remaining == -2:
				ttl = 0
			case remaining > 0 && remaining < ttl:
				ttl = remaining
			}
		}
		if ttl > 0 {
			_ = rc.l1.Set(ctx, key, json.RawMessage(payload), ttl)
		}
	}

	rc.stats.recordHit(2, time.Since(start))
	return true, nil
}

// Set stores value under key in both tiers. A failed Redis write degrades
// silently to an L1-only write when L1 is enabled; a Redis-only instance
// returns the connection error instead.
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return NewValidationError("key", "key cannot be empty")
	}

	payload, err := json.Marshal(value)
	if err != nil {
		rc.stats.recordError()
		return NewSerializationError(key, "failed to encode value", err)
	}

	if ttl <= 0 {
		ttl = rc.config.DefaultTTL
	}

	if rc.l1 != nil {
		if err := rc.l1.Set(ctx, key, json.RawMessage(payload), ttl); err != nil {
			rc.stats.recordError()
			return err
		}
	}

	writeErr := rc.writeL2(ctx, key, payload, ttl)
	if writeErr != nil {
		if rc.l1 == nil {
			rc.stats.recordError()
			return NewConnectionError("redis write failed", writeErr)
		}
		rc.stats.recordDegradedWrite()
		rc.logger.Warn("redis write failed, entry kept in L1 only", zap.String("key", key), zap.Error(writeErr))
	}

	rc.stats.recordSet()
	return nil
}

func (rc *RedisCache) writeL2(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if rc.State() != StateConnected {
		return fmt.Errorf("not connected (state %s)", rc.State())
	}
	stored, err := rc.compress(payload)
	if err != nil {
		return err
	}
	return rc.client.SetWithRetry(ctx, key, stored, ttl)
}

// Delete removes key from both tiers.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return NewValidationError("key", "key cannot be empty")
	}

	if rc.l1 != nil {
		_ = rc.l1.Delete(ctx, key)
	}

	if rc.State() == StateConnected {
		if err := rc.client.DelWithRetry(ctx, key); err != nil {
			rc.stats.recordError()
			if rc.l1 == nil {
				return NewConnectionError("redis delete failed", err)
			}
			rc.logger.Warn("redis delete failed", zap.String("key", key), zap.Error(err))
		}
	}

	rc.stats.recordDelete()
	return nil
}

// Exists reports whether key is present in any tier.
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, NewValidationError("key", "key cannot be empty")
	}

	if rc.l1 != nil {
		if found, err := rc.l1.Exists(ctx, key); err == nil && found {
			return true, nil
		}
	}

	if rc.State() != StateConnected {
		return false, nil
	}

	n, err := rc.client.ExistsWithRetry(ctx, key)
	if err != nil {
		rc.stats.recordError()
		return false, nil
	}
	return n > 0, nil
}

// Clear removes every entry: the L1 tier and the entire selected Redis
// database. Production deployments isolate caches by database index, so
// a flush clears only this cache's keyspace.
func (rc *RedisCache) Clear(ctx context.Context) error {
	if rc.l1 != nil {
		_ = rc.l1.Clear(ctx)
	}
	if rc.State() == StateConnected {
		if err := rc.client.FlushDB(ctx); err != nil {
			rc.stats.recordError()
			return NewConnectionError("redis flush failed", err)
		}
	}
	return nil
}

// DeleteByPattern removes keys matching a Redis glob pattern from both
// tiers and returns the number of L2 keys deleted.
func (rc *RedisCache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" || pattern == "*" {
		return 0, NewValidationError("pattern", "pattern is too broad")
	}

	if rc.l1 != nil {
		// L1 has no pattern index; drop it wholesale, entries repopulate
		// from L2 on demand.
		_ = rc.l1.Clear(ctx)
	}

	if rc.State() != StateConnected {
		return 0, nil
	}

	iter := rc.client.Client().Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		rc.stats.recordError()
		return 0, NewConnectionError("scan failed during pattern delete", err)
	}

	if len(keys) == 0 {
		return 0, nil
	}
	if err := rc.client.DelWithRetry(ctx, keys...); err != nil {
		rc.stats.recordError()
		return 0, NewConnectionError("delete failed during pattern delete", err)
	}
	return int64(len(keys)), nil
}

// GetStatistics returns a snapshot of the counters. The current size comes
// from the active tier: Redis DBSIZE when connected, else L1 length,
// degrading to zero when size detection fails.
func (rc *RedisCache) GetStatistics(ctx context.Context) Statistics {
	var size int64
	if rc.State() == StateConnected {
		if n, err := rc.client.DBSize(ctx); err == nil {
			size = n
		}
	} else if rc.l1 != nil {
		size = int64(rc.l1.Len())
	}
	return rc.stats.snapshot(size)
}

// Health checks the L2 tier.
func (rc *RedisCache) Health(ctx context.Context) error {
	return rc.client.PingWithRetry(ctx)
}

// Close releases both tiers. The engine cannot be reused afterwards.
func (rc *RedisCache) Close() error {
	if rc.State() == StateClosed {
		return nil
	}
	rc.state.Store(int32(StateClosed))
	if rc.l1 != nil {
		_ = rc.l1.Close()
	}
	return rc.client.Close()
}

// compress gzips the payload when it crosses the configured threshold.
func (rc *RedisCache) compress(payload []byte) (string, error) {
	if rc.config.CompressionThreshold <= 0 || len(payload) < rc.config.CompressionThreshold {
		return string(payload), nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, rc.config.CompressionLevel)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return "", fmt.Errorf("gzip compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gzip compression failed: %w", err)
	}

	return compressedMarker + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decompress reverses compress.
func (rc *RedisCache) decompress(data string) ([]byte, error) {
	if !strings.HasPrefix(data, compressedMarker) {
		return []byte(data), nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, compressedMarker))
	if err != nil {
		return nil, fmt.Errorf("gzip decompression failed: %w", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip decompression failed: %w", err)
	}
	defer r.Close()

	return io.ReadAll(r)
}
