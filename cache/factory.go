package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fallback defaults applied when a lenient construction cannot reach Redis
// and substitutes an in-process cache.
const (
	webFallbackTTL      = 1800 * time.Second
	webFallbackSize     = 200
	aiFallbackTTL       = 300 * time.Second
	aiFallbackSize      = 50
	genericFallbackTTL  = 1800 * time.Second
	genericFallbackSize = 100

	// testingRedisDB is the documented isolated database index for tests.
	testingRedisDB = 15
)

// WebCacheOptions configures ForWebApp.
type WebCacheOptions struct {
	RedisURL              string
	RedisPassword         string
	DefaultTTL            time.Duration
	L1CacheSize           int
	FailOnConnectionError bool
}

// AICacheOptions configures ForAIApp.
type AICacheOptions struct {
	RedisURL              string
	RedisPassword         string
	DefaultTTL            time.Duration
	L1CacheSize           int
	AIConfig              *AIConfig
	FailOnConnectionError bool
}

// TestingCacheOptions configures ForTesting. The default database index is
// 15 so tests never clobber development or production keyspaces.
type TestingCacheOptions struct {
	RedisURL              string
	RedisDB               int
	UseMemoryCache        bool
	FailOnConnectionError bool
}

// Factory builds ready-to-use cache instances for the supported deployment
// scenarios, encapsulating the strict/lenient connection-failure policy and
// the in-process fallback.
type Factory struct {
	mapper    *ParameterMapper
	validator *ConfigValidator
	logger    *zap.Logger
}

// NewFactory creates a Factory.
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		mapper:    NewParameterMapper(),
		validator: NewConfigValidator(logger),
		logger:    logger,
	}
}

// ForWebApp builds the generic Redis+L1 cache for a web application. When
// Redis is unreachable and FailOnConnectionError is false, it returns an
// in-process cache with web defaults instead.
func (f *Factory) ForWebApp(ctx context.Context, opts WebCacheOptions) (Cache, error) {
	if opts.RedisURL == "" {
		opts.RedisURL = "redis://localhost:6379/0"
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = webFallbackTTL
	}
	if opts.L1CacheSize == 0 {
		opts.L1CacheSize = webFallbackSize
	}

	config := DefaultRedisCacheConfig()
	config.RedisURL = opts.RedisURL
	config.RedisPassword = opts.RedisPassword
	config.DefaultTTL = opts.DefaultTTL
	config.L1CacheSize = opts.L1CacheSize

	return f.buildGeneric(ctx, config, "web", opts.FailOnConnectionError, webFallbackTTL, webFallbackSize)
}

// ForAIApp builds the AI-overlay cache. A missing AIConfig gets the
// documented defaults with a logged warning. When Redis is unreachable and
// FailOnConnectionError is false, it returns an in-process cache with AI
// defaults instead.
func (f *Factory) ForAIApp(ctx context.Context, opts AICacheOptions) (Cache, error) {
	if opts.RedisURL == "" {
		opts.RedisURL = "redis://localhost:6379/0"
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = aiFallbackTTL
	}
	if opts.L1CacheSize == 0 {
		opts.L1CacheSize = aiFallbackSize
	}
	if opts.AIConfig == nil {
		opts.AIConfig = DefaultAIConfig()
		f.logger.Warn("AI cache built without ai_config, applying defaults",
			zap.Int("text_hash_threshold", opts.AIConfig.TextHashThreshold),
			zap.String("hash_algorithm", opts.AIConfig.HashAlgorithm))
	}

	// Reject a bad overlay configuration before any connection attempt,
	// so strict and lenient modes fail identically.
	if err := validateAIConfig(opts.AIConfig); err != nil {
		return nil, err
	}

	config := DefaultRedisCacheConfig()
	config.RedisURL = opts.RedisURL
	config.RedisPassword = opts.RedisPassword
	config.DefaultTTL = opts.DefaultTTL
	config.L1CacheSize = opts.L1CacheSize

	return f.buildAI(ctx, config, opts.AIConfig, opts.FailOnConnectionError)
}

// ForTesting builds an isolated cache for tests. UseMemoryCache forces a
// pure in-process cache with no network at all; otherwise the cache
// targets the isolated test database index.
func (f *Factory) ForTesting(ctx context.Context, opts TestingCacheOptions) (Cache, error) {
	if opts.UseMemoryCache {
		return NewMemoryCache(genericFallbackSize, time.Minute, f.logger), nil
	}

	if opts.RedisURL == "" {
		opts.RedisURL = "redis://localhost:6379"
	}
	if opts.RedisDB == 0 {
		opts.RedisDB = testingRedisDB
	}

	config := DefaultRedisCacheConfig()
	config.RedisURL = opts.RedisURL
	config.RedisDB = opts.RedisDB
	config.DefaultTTL = time.Minute
	config.L1CacheSize = genericFallbackSize

	return f.buildGeneric(ctx, config, "testing", opts.FailOnConnectionError, genericFallbackTTL, genericFallbackSize)
}

// CreateFromConfig builds a cache from a flat configuration mapping. The
// cache kind is auto-detected: any AI-specific key selects the AI-overlay
// engine, otherwise the generic engine is used.
func (f *Factory) CreateFromConfig(ctx context.Context, config RawConfig, failOnConnectionError bool) (Cache, error) {
	if len(config) == 0 {
		return nil, NewValidationError("config", "configuration cannot be empty")
	}

	generic, aiSpecific, err := f.mapper.MapAIToGeneric(config)
	if err != nil {
		return nil, err
	}

	if _, ok := generic["redis_url"].(string); !ok {
		return nil, NewValidationError("redis_url", "missing required field")
	}

	engineConfig, err := engineConfigFromRaw(generic)
	if err != nil {
		return nil, err
	}

	result := f.validator.ValidateConfiguration(config)
	for _, warning := range result.Warnings {
		f.logger.Warn("configuration warning", zap.String("warning", warning))
	}
	if !result.IsValid {
		return nil, NewConfigurationError(
			"configuration rejected: "+strings.Join(result.Errors, "; "), nil)
	}

	isAI := wantsAICache(aiSpecific)
	if !isAI {
		return f.buildGeneric(ctx, engineConfig, "generic", failOnConnectionError, genericFallbackTTL, genericFallbackSize)
	}

	aiConfig, err := aiConfigFromRaw(aiSpecific)
	if err != nil {
		return nil, err
	}
	if aiConfig == nil {
		aiConfig = DefaultAIConfig()
		f.logger.Warn("AI cache requested without AI parameters, applying defaults")
	}
	if err := validateAIConfig(aiConfig); err != nil {
		return nil, err
	}

	return f.buildAI(ctx, engineConfig, aiConfig, failOnConnectionError)
}

// buildAI constructs and connects the engine, then wraps it with the AI
// overlay. The overlay configuration must already be validated, so the
// only remaining failure after a successful connect releases the engine.
func (f *Factory) buildAI(ctx context.Context, config *RedisCacheConfig, aiConfig *AIConfig, failOnConnectionError bool) (Cache, error) {
	engine, err := NewRedisCache(config, f.logger)
	if err != nil {
		return nil, err
	}

	if ok, connErr := engine.Connect(ctx); !ok {
		_ = engine.Close()
		if failOnConnectionError {
			return nil, NewInfrastructureError(
				"Redis connection failed for AI application cache", connErr,
				map[string]interface{}{
					"scenario":  "ai",
					"redis_url": config.RedisURL,
				})
		}
		f.logger.Warn("redis unreachable, falling back to in-process AI cache",
			zap.String("redis_url", config.RedisURL), zap.Error(connErr))
		return NewMemoryCache(aiFallbackSize, aiFallbackTTL, f.logger), nil
	}

	ai, err := NewAICache(engine, aiConfig, f.logger)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return ai, nil
}

// buildGeneric constructs and connects the generic engine, applying the
// strict/lenient failure policy.
func (f *Factory) buildGeneric(ctx context.Context, config *RedisCacheConfig, scenario string, failOnConnectionError bool, fallbackTTL time.Duration, fallbackSize int) (Cache, error) {
	engine, err := NewRedisCache(config, f.logger)
	if err != nil {
		return nil, err
	}

	if ok, connErr := engine.Connect(ctx); !ok {
		_ = engine.Close()
		if failOnConnectionError {
			return nil, NewInfrastructureError(
				fmt.Sprintf("Redis connection failed for %s application cache", scenario), connErr,
				map[string]interface{}{
					"scenario":  scenario,
					"redis_url": config.RedisURL,
				})
		}
		f.logger.Warn("redis unreachable, falling back to in-process cache",
			zap.String("scenario", scenario),
			zap.String("redis_url", config.RedisURL),
			zap.Error(connErr))
		return NewMemoryCache(fallbackSize, fallbackTTL, f.logger), nil
	}

	return engine, nil
}

// wantsAICache reports whether any AI-specific parameter is present.
func wantsAICache(aiSpecific RawConfig) bool {
	if enabled, ok := aiSpecific["enable_ai_cache"].(bool); ok {
		return enabled
	}
	for key := range aiSpecific {
		if _, known := aiParamTypes[key]; known {
			return true
		}
	}
	return false
}

// engineConfigFromRaw converts mapped generic parameters into an engine
// configuration. Numeric durations are seconds, matching the flat config
// surface.
func engineConfigFromRaw(generic RawConfig) (*RedisCacheConfig, error) {
	config := DefaultRedisCacheConfig()

	if v, ok := generic["redis_url"].(string); ok {
		config.RedisURL = v
	}
	if v, ok := generic["redis_password"].(string); ok {
		config.RedisPassword = v
	}
	if v, ok := generic["redis_db"]; ok {
		n, isNum := asFloat(v)
		if !isNum {
			return nil, NewValidationError("redis_db", fmt.Sprintf("expects number, got %T", v))
		}
		config.RedisDB = int(n)
	}
	if v, ok := generic["max_connections"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n <= 0 {
			return nil, NewValidationError("max_connections", fmt.Sprintf("must be a positive number, got %v", v))
		}
		config.MaxConnections = int(n)
	}
	if v, ok := generic["connection_timeout"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n <= 0 {
			return nil, NewValidationError("connection_timeout", fmt.Sprintf("must be a positive number of seconds, got %v", v))
		}
		config.ConnectionTimeout = time.Duration(n * float64(time.Second))
	}
	if v, ok := generic["default_ttl"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n < 0 {
			return nil, NewValidationError("default_ttl", fmt.Sprintf("must be a non-negative number of seconds, got %v", v))
		}
		config.DefaultTTL = time.Duration(n * float64(time.Second))
	}
	if v, ok := generic["enable_l1_cache"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return nil, NewValidationError("enable_l1_cache", fmt.Sprintf("expects bool, got %T", v))
		}
		config.EnableL1Cache = b
	}
	if v, ok := generic["l1_cache_size"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n <= 0 {
			return nil, NewValidationError("l1_cache_size", fmt.Sprintf("must be a positive number, got %v", v))
		}
		config.L1CacheSize = int(n)
	}
	if v, ok := generic["compression_threshold"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n < 0 {
			return nil, NewValidationError("compression_threshold", fmt.Sprintf("must be a non-negative number, got %v", v))
		}
		config.CompressionThreshold = int(n)
	}
	if v, ok := generic["compression_level"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n < 1 || n > 9 {
			return nil, NewValidationError("compression_level", fmt.Sprintf("must be between 1 and 9, got %v", v))
		}
		config.CompressionLevel = int(n)
	}

	return config, nil
}

// aiConfigFromRaw converts AI-specific parameters into an AIConfig. It
// returns nil when no AI parameter beyond the enable flag is present, so
// the caller can apply documented defaults.
func aiConfigFromRaw(aiSpecific RawConfig) (*AIConfig, error) {
	hasAny := false
	for key := range aiSpecific {
		if key != "enable_ai_cache" {
			if _, known := aiParamTypes[key]; known {
				hasAny = true
				break
			}
		}
	}
	if !hasAny {
		return nil, nil
	}

	config := DefaultAIConfig()

	if v, ok := aiSpecific["text_hash_threshold"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n < 0 {
			return nil, NewValidationError("text_hash_threshold", fmt.Sprintf("must be a non-negative number, got %v", v))
		}
		config.TextHashThreshold = int(n)
	}
	if v, ok := aiSpecific["hash_algorithm"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, NewValidationError("hash_algorithm", fmt.Sprintf("expects string, got %T", v))
		}
		config.HashAlgorithm = s
	}
	if v, ok := aiSpecific["enable_smart_promotion"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return nil, NewValidationError("enable_smart_promotion", fmt.Sprintf("expects bool, got %T", v))
		}
		config.EnableSmartPromotion = b
	}
	if v, ok := aiSpecific["max_text_length"]; ok {
		n, isNum := asFloat(v)
		if !isNum || n <= 0 {
			return nil, NewValidationError("max_text_length", fmt.Sprintf("must be a positive number, got %v", v))
		}
		config.MaxTextLength = int(n)
	}
	if v, ok := aiSpecific["key_prefix"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, NewValidationError("key_prefix", fmt.Sprintf("expects string, got %T", v))
		}
		config.KeyPrefix = s
	}
	if v, ok := aiSpecific["operation_ttls"]; ok {
		ttls, isMap := v.(map[string]interface{})
		if !isMap {
			return nil, NewValidationError("operation_ttls", fmt.Sprintf("expects map, got %T", v))
		}
		config.OperationTTLs = make(map[string]time.Duration, len(ttls))
		for op, ttl := range ttls {
			n, isNum := asFloat(ttl)
			if !isNum || n < 0 {
				return nil, NewValidationError("operation_ttls", fmt.Sprintf("TTL for %q must be a non-negative number of seconds, got %v", op, ttl))
			}
			config.OperationTTLs[op] = time.Duration(n * float64(time.Second))
		}
	}
	if v, ok := aiSpecific["text_size_tiers"]; ok {
		tiers, isMap := v.(map[string]interface{})
		if !isMap {
			return nil, NewValidationError("text_size_tiers", fmt.Sprintf("expects map, got %T", v))
		}
		config.TextSizeTiers = make(map[string]int, len(tiers))
		for name, bound := range tiers {
			n, isNum := asFloat(bound)
			if !isNum || n <= 0 {
				return nil, NewValidationError("text_size_tiers", fmt.Sprintf("bound for tier %q must be a positive number, got %v", name, bound))
			}
			config.TextSizeTiers[name] = int(n)
		}
	}

	return config, nil
}
