package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableURL points at a port nothing listens on, so connection
// attempts fail fast.
const unreachableURL = "redis://127.0.0.1:1"

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func TestForWebApp_Connected(t *testing.T) {
	mr := startMiniredis(t)
	factory := NewFactory(nil)

	c, err := factory.ForWebApp(context.Background(), WebCacheOptions{
		RedisURL: "redis://" + mr.Addr(),
	})
	require.NoError(t, err)
	defer c.Close()

	engine, ok := c.(*RedisCache)
	require.True(t, ok, "a reachable Redis yields the full engine")
	assert.Equal(t, StateConnected, engine.State())
}

func TestForWebApp_LenientFallback(t *testing.T) {
	factory := NewFactory(nil)
	ctx := context.Background()

	c, err := factory.ForWebApp(ctx, WebCacheOptions{RedisURL: unreachableURL})
	require.NoError(t, err, "lenient mode must not fail on an unreachable Redis")
	defer c.Close()

	fallback, ok := c.(*MemoryCache)
	require.True(t, ok, "lenient mode substitutes the in-process cache")
	assert.Equal(t, webFallbackSize, fallback.maxSize)

	// The fallback serves the full cache contract.
	require.NoError(t, c.Set(ctx, "key1", "value1", 0))
	var got string
	found, err := c.Get(ctx, "key1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", got)
}

func TestForWebApp_StrictFailure(t *testing.T) {
	factory := NewFactory(nil)

	c, err := factory.ForWebApp(context.Background(), WebCacheOptions{
		RedisURL:              unreachableURL,
		FailOnConnectionError: true,
	})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, IsInfrastructureError(err))
	assert.Contains(t, err.Error(), "Redis connection failed for web application cache")

	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "web", cacheErr.Context["scenario"])
	assert.Equal(t, unreachableURL, cacheErr.Context["redis_url"])
}

func TestForAIApp_Connected(t *testing.T) {
	mr := startMiniredis(t)
	factory := NewFactory(nil)
	ctx := context.Background()

	c, err := factory.ForAIApp(ctx, AICacheOptions{
		RedisURL: "redis://" + mr.Addr(),
		AIConfig: DefaultAIConfig(),
	})
	require.NoError(t, err)
	defer c.Close()

	ac, ok := c.(*AICache)
	require.True(t, ok)

	require.NoError(t, ac.StoreResponse(ctx, "text", "summarize", "", "result", 0, ""))
	var got string
	found, err := ac.GetResponse(ctx, "text", "summarize", "", &got)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestForAIApp_DefaultsWhenConfigMissing(t *testing.T) {
	mr := startMiniredis(t)
	factory := NewFactory(nil)

	c, err := factory.ForAIApp(context.Background(), AICacheOptions{
		RedisURL: "redis://" + mr.Addr(),
	})
	require.NoError(t, err)
	defer c.Close()

	ac := c.(*AICache)
	assert.Equal(t, 500, ac.AIConfig().TextHashThreshold)
	assert.Equal(t, "sha256", ac.AIConfig().HashAlgorithm)
}

func TestForAIApp_StrictAndLenient(t *testing.T) {
	factory := NewFactory(nil)
	ctx := context.Background()

	_, err := factory.ForAIApp(ctx, AICacheOptions{
		RedisURL:              unreachableURL,
		FailOnConnectionError: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis connection failed for AI application cache")

	c, err := factory.ForAIApp(ctx, AICacheOptions{RedisURL: unreachableURL})
	require.NoError(t, err)
	defer c.Close()

	fallback, ok := c.(*MemoryCache)
	require.True(t, ok)
	assert.Equal(t, aiFallbackSize, fallback.maxSize)
}

func TestForAIApp_InvalidConfigRejectedBeforeConnect(t *testing.T) {
	factory := NewFactory(nil)
	ctx := context.Background()

	// A bad overlay configuration is rejected in lenient mode too; it
	// must never be discarded in favor of the in-process fallback.
	_, err := factory.ForAIApp(ctx, AICacheOptions{
		RedisURL: unreachableURL,
		AIConfig: &AIConfig{TextHashThreshold: -1, MaxTextLength: 1000},
	})
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "text_hash_threshold", cacheErr.Field)

	_, err = factory.ForAIApp(ctx, AICacheOptions{
		RedisURL: unreachableURL,
		AIConfig: &AIConfig{HashAlgorithm: "md5", MaxTextLength: 1000},
	})
	require.Error(t, err)
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "hash_algorithm", cacheErr.Field)
}

func TestForTesting_MemoryCache(t *testing.T) {
	factory := NewFactory(nil)

	c, err := factory.ForTesting(context.Background(), TestingCacheOptions{UseMemoryCache: true})
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.(*MemoryCache)
	assert.True(t, ok)
}

func TestForTesting_IsolatedDatabase(t *testing.T) {
	mr := startMiniredis(t)
	factory := NewFactory(nil)

	c, err := factory.ForTesting(context.Background(), TestingCacheOptions{
		RedisURL: "redis://" + mr.Addr(),
	})
	require.NoError(t, err)
	defer c.Close()

	engine := c.(*RedisCache)
	assert.Equal(t, testingRedisDB, engine.config.RedisDB)
	assert.Equal(t, time.Minute, engine.config.DefaultTTL)
}

func TestCreateFromConfig_Empty(t *testing.T) {
	factory := NewFactory(nil)

	_, err := factory.CreateFromConfig(context.Background(), RawConfig{}, false)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateFromConfig_MissingRedisURL(t *testing.T) {
	factory := NewFactory(nil)

	_, err := factory.CreateFromConfig(context.Background(), RawConfig{"default_ttl": 600}, false)
	require.Error(t, err)

	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "redis_url", cacheErr.Field)
}

func TestCreateFromConfig_GenericEngine(t *testing.T) {
	mr := startMiniredis(t)
	factory := NewFactory(nil)

	c, err := factory.CreateFromConfig(context.Background(), RawConfig{
		"redis_url":   "redis://" + mr.Addr(),
		"default_ttl": 600,
	}, false)
	require.NoError(t, err)
	defer c.Close()

	engine, ok := c.(*RedisCache)
	require.True(t, ok, "no AI parameter means the generic engine")
	assert.Equal(t, 600*time.Second, engine.config.DefaultTTL)
}

func TestCreateFromConfig_DetectsAICache(t *testing.T) {
	mr := startMiniredis(t)
	factory := NewFactory(nil)

	t.Run("via enable flag", func(t *testing.T) {
		c, err := factory.CreateFromConfig(context.Background(), RawConfig{
			"redis_url":       "redis://" + mr.Addr(),
			"enable_ai_cache": true,
		}, false)
		require.NoError(t, err)
		defer c.Close()

		_, ok := c.(*AICache)
		assert.True(t, ok)
	})

	t.Run("via AI parameter", func(t *testing.T) {
		c, err := factory.CreateFromConfig(context.Background(), RawConfig{
			"redis_url":           "redis://" + mr.Addr(),
			"text_hash_threshold": 800,
		}, false)
		require.NoError(t, err)
		defer c.Close()

		ac, ok := c.(*AICache)
		require.True(t, ok)
		assert.Equal(t, 800, ac.AIConfig().TextHashThreshold)
	})

	t.Run("explicitly disabled", func(t *testing.T) {
		c, err := factory.CreateFromConfig(context.Background(), RawConfig{
			"redis_url":       "redis://" + mr.Addr(),
			"enable_ai_cache": false,
		}, false)
		require.NoError(t, err)
		defer c.Close()

		_, ok := c.(*RedisCache)
		assert.True(t, ok)
	})
}

func TestCreateFromConfig_AliasConflict(t *testing.T) {
	factory := NewFactory(nil)

	_, err := factory.CreateFromConfig(context.Background(), RawConfig{
		"redis_url":         "redis://localhost:6379",
		"memory_cache_size": 500,
		"l1_cache_size":     1000,
	}, false)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestCreateFromConfig_BadValues(t *testing.T) {
	factory := NewFactory(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		config RawConfig
		field  string
	}{
		{
			"non-numeric ttl",
			RawConfig{"redis_url": "redis://localhost:6379", "default_ttl": "soon"},
			"default_ttl",
		},
		{
			"zero connections",
			RawConfig{"redis_url": "redis://localhost:6379", "max_connections": 0},
			"max_connections",
		},
		{
			"compression level out of range",
			RawConfig{"redis_url": "redis://localhost:6379", "compression_level": 15},
			"compression_level",
		},
		{
			"non-map operation ttls",
			RawConfig{"redis_url": "redis://localhost:6379", "enable_ai_cache": true, "operation_ttls": 60},
			"operation_ttls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.CreateFromConfig(ctx, tt.config, false)
			require.Error(t, err)

			var cacheErr *CacheError
			require.ErrorAs(t, err, &cacheErr)
			assert.Equal(t, tt.field, cacheErr.Field)
		})
	}
}

func TestCreateFromConfig_InvalidHashAlgorithm(t *testing.T) {
	factory := NewFactory(nil)

	// Rejected before any connection attempt, even in lenient mode.
	_, err := factory.CreateFromConfig(context.Background(), RawConfig{
		"redis_url":      unreachableURL,
		"hash_algorithm": "md5",
	}, false)
	require.Error(t, err)

	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "hash_algorithm", cacheErr.Field)
}

func TestCreateFromConfig_RejectsBadScheme(t *testing.T) {
	factory := NewFactory(nil)

	_, err := factory.CreateFromConfig(context.Background(), RawConfig{
		"redis_url": "http://localhost:6379",
	}, false)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "redis://")
}

func TestCreateFromConfig_OperationTTLs(t *testing.T) {
	mr := startMiniredis(t)
	factory := NewFactory(nil)

	c, err := factory.CreateFromConfig(context.Background(), RawConfig{
		"redis_url":       "redis://" + mr.Addr(),
		"enable_ai_cache": true,
		"operation_ttls": map[string]interface{}{
			"summarize": 7200,
			"answer":    600,
		},
	}, false)
	require.NoError(t, err)
	defer c.Close()

	ac := c.(*AICache)
	assert.Equal(t, 2*time.Hour, ac.ResolveTTL("summarize", 0))
	assert.Equal(t, 10*time.Minute, ac.ResolveTTL("answer", 0))
}
