// Package cache provides a tiered caching layer for AI serving workloads,
// backed by Redis with an optional in-process L1 tier.
//
// This package implements:
//   - A two-tier cache engine (in-memory L1 + Redis L2) with transparent
//     compression of large payloads
//   - Content-addressed cache keys for AI responses, question answering and
//     scan results
//   - A parameter mapper that translates AI-centric configuration keys to
//     the generic engine configuration
//   - A configuration validator with presets, templates and deterministic
//     configuration comparison
//   - A cache factory with scenario-specific fallbacks for web, AI and
//     testing workloads
//   - A lifecycle registry that deduplicates cache construction and probes
//     cache health
//   - Typed errors with classification predicates
//   - Configurable retry logic with exponential backoff
//
// # Basic Usage
//
// Create a cache engine with default configuration:
//
//	config := cache.DefaultRedisCacheConfig()
//	config.RedisURL = "redis://localhost:6379"
//
//	engine, err := cache.NewRedisCache(config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	connected, err := engine.Connect(ctx)
//	if err != nil {
//	    log.Println("running degraded:", err)
//	}
//
// Store and retrieve values:
//
//	err = engine.Set(ctx, "session:42", session, time.Hour)
//
//	var got Session
//	found, err := engine.Get(ctx, "session:42", &got)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !found {
//	    // cache miss
//	}
//
// # AI Response Caching
//
// The AI overlay derives deterministic keys from request content, so
// identical requests always hit the same entry:
//
//	ai, err := cache.NewAICache(engine, cache.DefaultAIConfig(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = ai.StoreResponse(ctx, text, "summarize", response, 0)
//
//	entry, found, err := ai.GetResponse(ctx, text, "summarize")
//
// # Factory and Registry
//
// Applications usually build caches through the factory, which applies
// scenario defaults and fallback policy:
//
//	factory := cache.NewFactory(logger)
//	c, err := factory.ForAIApp(ctx, cache.AICacheOptions{
//	    RedisURL: "redis://localhost:6379",
//	})
//
// The registry deduplicates construction per configuration fingerprint and
// holds weak references, so unused caches can still be collected:
//
//	registry := cache.NewRegistry(logger)
//	key := cache.Fingerprint(resolved)
//	c, err := registry.GetOrCreate(ctx, key, func() (cache.Cache, error) {
//	    return factory.CreateFromConfig(ctx, resolved)
//	})
//
// # Error Handling
//
// All failures are reported as typed *CacheError values with
// classification predicates:
//
//	if err != nil {
//	    switch {
//	    case cache.IsValidationError(err):
//	        // invalid input or configuration value
//	    case cache.IsConnectionError(err):
//	        // Redis unreachable
//	    case cache.IsInfrastructureError(err):
//	        // construction or backend failure, see err.Context
//	    default:
//	        log.Println("unexpected error:", err)
//	    }
//	}
//
// All cache operations are safe for concurrent use.
package cache
