package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/inferstack/aicache/internal"
)

// AIConfig configures the AI overlay: content-hash key generation and
// operation-specific TTLs layered on the generic engine.
type AIConfig struct {
	// TextHashThreshold is the text length above which the key material
	// uses the text's hash instead of the text itself, keeping key
	// generation cost independent of payload size.
	TextHashThreshold int `json:"text_hash_threshold"`

	// HashAlgorithm selects the content hash ("sha256" or "sha512").
	HashAlgorithm string `json:"hash_algorithm"`

	// TextSizeTiers maps tier names to upper length bounds, used to label
	// cache traffic in logs and diagnostics.
	TextSizeTiers map[string]int `json:"text_size_tiers"`

	// OperationTTLs overrides the default TTL per operation name.
	OperationTTLs map[string]time.Duration `json:"operation_ttls"`

	// EnableSmartPromotion persists hit counts back to the store so
	// frequently used entries remain observable across processes.
	EnableSmartPromotion bool `json:"enable_smart_promotion"`

	// MaxTextLength is the largest text the overlay will cache at all.
	MaxTextLength int `json:"max_text_length"`

	// KeyPrefix prefixes every generated key.
	KeyPrefix string `json:"key_prefix"`
}

// DefaultAIConfig returns the documented AI overlay defaults.
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		TextHashThreshold:    500,
		HashAlgorithm:        internal.HashSHA256,
		TextSizeTiers:        map[string]int{"small": 1000, "medium": 10000, "large": 100000},
		OperationTTLs:        map[string]time.Duration{},
		EnableSmartPromotion: true,
		MaxTextLength:        100000,
		KeyPrefix:            "aicache:",
	}
}

// CacheEntry is the stored envelope for AI cache entries. HitCount is
// incremented on every hit and, with smart promotion enabled, persisted
// back to the store.
type CacheEntry struct {
	Value           json.RawMessage `json:"value"`
	CreatedAt       time.Time       `json:"created_at"`
	TTLSeconds      int64           `json:"ttl_seconds"`
	HitCount        int64           `json:"hit_count"`
	KeyInputsHash   string          `json:"key_inputs_hash,omitempty"`
	ProducerVersion string          `json:"producer_version,omitempty"`
}

// AICache specializes the generic engine for AI workloads: deterministic
// content-hash keys, per-operation TTLs and an entry envelope carrying hit
// counts and producer provenance.
type AICache struct {
	*RedisCache
	aiConfig *AIConfig
	keyGen   internal.KeyGenerator
	logger   *zap.Logger
}

// NewAICache wraps an engine with the AI overlay. A nil aiConfig selects
// the documented defaults.
func NewAICache(engine *RedisCache, aiConfig *AIConfig, logger *zap.Logger) (*AICache, error) {
	if engine == nil {
		return nil, NewValidationError("engine", "engine cannot be nil")
	}
	if aiConfig == nil {
		aiConfig = DefaultAIConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := validateAIConfig(aiConfig); err != nil {
		return nil, err
	}

	keyGen, err := internal.NewKeyGenerator(aiConfig.KeyPrefix, aiConfig.HashAlgorithm, aiConfig.TextHashThreshold)
	if err != nil {
		return nil, NewValidationError("hash_algorithm", err.Error())
	}

	return &AICache{
		RedisCache: engine,
		aiConfig:   aiConfig,
		keyGen:     keyGen,
		logger:     logger,
	}, nil
}

// validateAIConfig checks overlay parameters. It performs no I/O, so
// callers can reject a bad configuration before touching Redis.
func validateAIConfig(aiConfig *AIConfig) error {
	if aiConfig.TextHashThreshold < 0 {
		return NewValidationError("text_hash_threshold", "threshold cannot be negative")
	}
	if aiConfig.MaxTextLength <= 0 {
		return NewValidationError("max_text_length", "max text length must be positive")
	}
	for op, ttl := range aiConfig.OperationTTLs {
		if ttl < 0 {
			return NewValidationError("operation_ttls", fmt.Sprintf("TTL for operation %q cannot be negative", op))
		}
	}
	if _, err := internal.NewKeyGenerator(aiConfig.KeyPrefix, aiConfig.HashAlgorithm, aiConfig.TextHashThreshold); err != nil {
		return NewValidationError("hash_algorithm", err.Error())
	}
	return nil
}

// AIConfig returns the overlay configuration.
func (ac *AICache) AIConfig() *AIConfig {
	return ac.aiConfig
}

// GenerateCacheKey generates the deterministic key for (text, operation).
func (ac *AICache) GenerateCacheKey(text, operation string) string {
	return ac.keyGen.ResponseKey(text, operation, "")
}

// GenerateQAKey generates the key for a question-answering lookup, where
// the question is an extra key dimension.
func (ac *AICache) GenerateQAKey(text, operation, question string) string {
	return ac.keyGen.ResponseKey(text, operation, question)
}

// GenerateScanKey generates the key for a security-scan result. The
// scanner configuration hash and version are key dimensions so scanner
// changes never serve stale verdicts.
func (ac *AICache) GenerateScanKey(text, scanType, scannerConfigHash, scannerVersion string) string {
	return ac.keyGen.ScanKey(text, scanType, scannerConfigHash, scannerVersion)
}

// GetResponse retrieves a cached response for (text, operation, question).
// Oversized texts bypass the cache entirely.
func (ac *AICache) GetResponse(ctx context.Context, text, operation, question string, dest interface{}) (bool, error) {
	if len(text) > ac.aiConfig.MaxTextLength {
		return false, nil
	}

	key := ac.keyGen.ResponseKey(text, operation, question)
	return ac.getEntry(ctx, key, dest)
}

// StoreResponse caches a response for (text, operation, question) with the
// resolved TTL and producer provenance.
func (ac *AICache) StoreResponse(ctx context.Context, text, operation, question string, response interface{}, ttlOverride time.Duration, producerVersion string) error {
	if len(text) > ac.aiConfig.MaxTextLength {
		ac.logger.Debug("text exceeds max cacheable length, skipping store",
			zap.String("operation", operation),
			zap.Int("text_len", len(text)),
			zap.String("tier", ac.tierFor(text)))
		return nil
	}

	key := ac.keyGen.ResponseKey(text, operation, question)
	return ac.putEntry(ctx, key, operation, response, ttlOverride, "", producerVersion)
}

// GetScanResult retrieves a cached security-scan verdict.
func (ac *AICache) GetScanResult(ctx context.Context, text, scanType, scannerConfigHash, scannerVersion string, dest interface{}) (bool, error) {
	if len(text) > ac.aiConfig.MaxTextLength {
		return false, nil
	}

	key := ac.keyGen.ScanKey(text, scanType, scannerConfigHash, scannerVersion)
	return ac.getEntry(ctx, key, dest)
}

// StoreScanResult caches a security-scan verdict.
func (ac *AICache) StoreScanResult(ctx context.Context, text, scanType, scannerConfigHash, scannerVersion string, result interface{}, ttlOverride time.Duration) error {
	if len(text) > ac.aiConfig.MaxTextLength {
		return nil
	}

	key := ac.keyGen.ScanKey(text, scanType, scannerConfigHash, scannerVersion)
	return ac.putEntry(ctx, key, scanType, result, ttlOverride, scannerConfigHash, scannerVersion)
}

// ResolveTTL resolves the write TTL: explicit override, then the
// operation-specific table, then the engine default.
func (ac *AICache) ResolveTTL(operation string, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if ttl, ok := ac.aiConfig.OperationTTLs[operation]; ok && ttl > 0 {
		return ttl
	}
	return ac.config.DefaultTTL
}

// Clear removes only this overlay's keys, identified by the key prefix.
func (ac *AICache) Clear(ctx context.Context) error {
	_, err := ac.DeleteByPattern(ctx, ac.aiConfig.KeyPrefix+"*")
	return err
}

func (ac *AICache) getEntry(ctx context.Context, key string, dest interface{}) (bool, error) {
	var entry CacheEntry
	found, err := ac.RedisCache.Get(ctx, key, &entry)
	if err != nil || !found {
		return false, err
	}

	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return false, NewSerializationError(key, "failed to decode cached response", err)
	}

	entry.HitCount++
	if ac.aiConfig.EnableSmartPromotion {
		// Persist the updated hit count with the entry's remaining TTL so
		// promotion never extends an entry's life.
		remaining := time.Duration(entry.TTLSeconds)*time.Second - time.Since(entry.CreatedAt)
		if remaining > 0 {
			if err := ac.RedisCache.Set(ctx, key, &entry, remaining); err != nil {
				ac.logger.Warn("failed to persist hit count", zap.String("key", key), zap.Error(err))
			}
		}
	}

	return true, nil
}

func (ac *AICache) putEntry(ctx context.Context, key, operation string, value interface{}, ttlOverride time.Duration, keyInputsHash, producerVersion string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return NewSerializationError(key, "failed to encode response", err)
	}

	ttl := ac.ResolveTTL(operation, ttlOverride)
	entry := &CacheEntry{
		Value:           raw,
		CreatedAt:       time.Now(),
		TTLSeconds:      int64(ttl / time.Second),
		KeyInputsHash:   keyInputsHash,
		ProducerVersion: producerVersion,
	}

	return ac.RedisCache.Set(ctx, key, entry, ttl)
}

// tierFor returns the name of the smallest configured size tier that the
// text fits in, or "oversize" when it exceeds every tier.
func (ac *AICache) tierFor(text string) string {
	type tier struct {
		name  string
		bound int
	}
	tiers := make([]tier, 0, len(ac.aiConfig.TextSizeTiers))
	for name, bound := range ac.aiConfig.TextSizeTiers {
		tiers = append(tiers, tier{name, bound})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].bound < tiers[j].bound })

	for _, t := range tiers {
		if len(text) <= t.bound {
			return t.name
		}
	}
	return "oversize"
}
