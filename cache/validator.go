package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Preset field bounds. Presets are deployment-facing, so the bounds are
// tighter than what the engine itself would accept.
const (
	presetMinTTL               = 60
	presetMaxTTL               = 86400
	presetMinConnections       = 1
	presetMaxConnections       = 100
	presetMinConnectionTimeout = 1
	presetMaxConnectionTimeout = 300
	presetMinHashThreshold     = 100
	presetMaxHashThreshold     = 10000
	presetMinOperationTTL      = 60
)

// requiredPresetFields are the fields every preset must carry.
var requiredPresetFields = []string{
	"name",
	"strategy",
	"default_ttl",
	"max_connections",
	"connection_timeout",
	"memory_cache_size",
	"compression_threshold",
	"compression_level",
	"enable_ai_cache",
	"enable_monitoring",
	"log_level",
	"environment_contexts",
}

var knownLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warning": true,
	"error":   true,
}

var knownEnvironmentContexts = map[string]bool{
	"development": true,
	"testing":     true,
	"staging":     true,
	"production":  true,
}

// ConfigValidator checks presets, full configurations and ad-hoc overrides
// against the known-parameter schema, and serves the reusable configuration
// templates. All entry points return a ValidationResult and never raise for
// data-quality problems.
type ConfigValidator struct {
	mapper *ParameterMapper
	logger *zap.Logger
}

// NewConfigValidator creates a ConfigValidator.
func NewConfigValidator(logger *zap.Logger) *ConfigValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigValidator{
		mapper: NewParameterMapper(),
		logger: logger,
	}
}

// ValidatePreset schema-checks a deployment preset: required fields, field
// bounds and, when AI caching is enabled, the nested ai_optimizations
// block. Unknown environment contexts are warnings because they only steer
// auto-detection heuristics.
func (cv *ConfigValidator) ValidatePreset(preset RawConfig) *ValidationResult {
	result := NewValidationResult()
	if len(preset) == 0 {
		result.AddError("preset cannot be empty")
		return result
	}

	for _, field := range requiredPresetFields {
		if _, ok := preset[field]; !ok {
			result.AddError(fmt.Sprintf("missing required field %q", field))
		}
	}

	cv.checkNumericBound(result, preset, "default_ttl", presetMinTTL, presetMaxTTL)
	cv.checkNumericBound(result, preset, "max_connections", presetMinConnections, presetMaxConnections)
	cv.checkNumericBound(result, preset, "connection_timeout", presetMinConnectionTimeout, presetMaxConnectionTimeout)
	cv.checkNumericBound(result, preset, "compression_level", 1, 9)

	if v, ok := preset["memory_cache_size"]; ok {
		if n, isNum := asFloat(v); !isNum {
			result.AddError(fmt.Sprintf("memory_cache_size expects number, got %T", v))
		} else if n <= 0 {
			result.AddError(fmt.Sprintf("memory_cache_size must be positive, got %v", v))
		}
	}

	if v, ok := preset["log_level"]; ok {
		if s, isStr := v.(string); !isStr {
			result.AddError(fmt.Sprintf("log_level expects string, got %T", v))
		} else if !knownLogLevels[strings.ToLower(s)] {
			result.AddError(fmt.Sprintf("log_level %q is not one of debug, info, warning, error", s))
		}
	}

	if v, ok := preset["environment_contexts"]; ok {
		contexts, isList := v.([]interface{})
		if !isList {
			result.AddError(fmt.Sprintf("environment_contexts expects list, got %T", v))
		} else {
			for _, c := range contexts {
				s, isStr := c.(string)
				if !isStr || !knownEnvironmentContexts[s] {
					result.AddWarning(fmt.Sprintf("unknown environment context %v, auto-detection will ignore it", c))
				}
			}
		}
	}

	if enabled, ok := preset["enable_ai_cache"].(bool); ok && enabled {
		cv.validateAIOptimizations(result, preset)
	}

	result.Context["validated"] = "preset"
	return result
}

// validateAIOptimizations checks the nested ai_optimizations block of a
// preset with AI caching enabled.
func (cv *ConfigValidator) validateAIOptimizations(result *ValidationResult, preset RawConfig) {
	raw, ok := preset["ai_optimizations"]
	if !ok {
		result.AddWarning("enable_ai_cache=true without an ai_optimizations block; defaults will be applied")
		return
	}

	block, ok := raw.(map[string]interface{})
	if !ok {
		result.AddError(fmt.Sprintf("ai_optimizations expects map, got %T", raw))
		return
	}

	if v, ok := block["text_hash_threshold"]; ok {
		if n, isNum := asFloat(v); !isNum {
			result.AddError(fmt.Sprintf("text_hash_threshold expects number, got %T", v))
		} else if n < presetMinHashThreshold || n > presetMaxHashThreshold {
			result.AddError(fmt.Sprintf("text_hash_threshold must be between %d and %d, got %v",
				presetMinHashThreshold, presetMaxHashThreshold, v))
		}
	}

	if v, ok := block["operation_ttls"]; ok {
		ttls, isMap := v.(map[string]interface{})
		if !isMap {
			result.AddError(fmt.Sprintf("operation_ttls expects map, got %T", v))
			return
		}
		for op, ttl := range ttls {
			if n, isNum := asFloat(ttl); !isNum {
				result.AddError(fmt.Sprintf("operation_ttls[%s] expects number, got %T", op, ttl))
			} else if n < presetMinOperationTTL {
				result.AddError(fmt.Sprintf("operation_ttls[%s] must be at least %ds, got %v", op, presetMinOperationTTL, ttl))
			}
		}
	}
}

// ValidateConfiguration validates a complete, ready-to-construct
// configuration: URL scheme, TLS consistency and performance-parameter
// interactions.
func (cv *ConfigValidator) ValidateConfiguration(config RawConfig) *ValidationResult {
	result := cv.mapper.ValidateParameterCompatibility(config)
	if len(config) == 0 {
		result.AddError("configuration cannot be empty")
		return result
	}

	url, hasURL := config["redis_url"].(string)
	if !hasURL || url == "" {
		result.AddError("missing required field \"redis_url\"")
	} else {
		switch {
		case strings.HasPrefix(url, "redis://"),
			strings.HasPrefix(url, "rediss://"),
			strings.HasPrefix(url, "unix://"):
		default:
			result.AddError(fmt.Sprintf("redis_url must use redis://, rediss:// or unix:// scheme, got %q", url))
		}

		if tls, ok := config["use_tls"].(bool); ok {
			if tls && strings.HasPrefix(url, "redis://") {
				result.AddWarning("use_tls=true should pair with a rediss:// URL")
			}
			if !tls && strings.HasPrefix(url, "rediss://") {
				result.AddWarning("rediss:// URL with use_tls=false; the URL scheme wins")
			}
		}
	}

	// Performance interactions: legal but likely misconfigured.
	if conns, ok := asFloat(config["max_connections"]); ok && conns > 50 {
		if timeout, ok := asFloat(config["connection_timeout"]); ok && timeout < 5 {
			result.AddWarning(fmt.Sprintf(
				"max_connections=%v with connection_timeout=%vs risks pool exhaustion under load", conns, timeout))
		}
	}
	if threshold, ok := asFloat(config["text_hash_threshold"]); ok && threshold > 0 && threshold < presetMinHashThreshold {
		result.AddWarning(fmt.Sprintf(
			"text_hash_threshold=%v is very low; most texts will be pre-hashed, increasing key generation cost", threshold))
	}

	result.Context["validated"] = "configuration"
	return result
}

// ValidateCustomOverrides checks ad-hoc override maps. Unknown keys are
// tolerated with a warning; a known key with the wrong type is an error.
func (cv *ConfigValidator) ValidateCustomOverrides(overrides RawConfig) *ValidationResult {
	result := NewValidationResult()

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := overrides[key]
		kind, known := lookupParamKind(key)
		if !known {
			result.AddWarning(fmt.Sprintf("unknown parameter %q will be passed through unvalidated", key))
			continue
		}
		if !matchesKind(value, kind) {
			result.AddError(fmt.Sprintf("%s expects %s, got %s", key, kind, typeName(value)))
		}
	}

	result.Context["validated"] = "overrides"
	return result
}

// ConfigDiff is the structural difference between two configurations.
type ConfigDiff struct {
	AddedKeys     []string      `json:"added_keys"`
	RemovedKeys   []string      `json:"removed_keys"`
	ChangedValues []ValueChange `json:"changed_values"`
	IdenticalKeys []string      `json:"identical_keys"`
}

// ValueChange records one key whose value differs between configurations.
type ValueChange struct {
	Key      string      `json:"key"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

// CompareConfigurations computes a deterministic structural diff between
// two configurations, used for migration and impact analysis.
func (cv *ConfigValidator) CompareConfigurations(oldConfig, newConfig RawConfig) ConfigDiff {
	diff := ConfigDiff{}

	keys := make(map[string]bool, len(oldConfig)+len(newConfig))
	for key := range oldConfig {
		keys[key] = true
	}
	for key := range newConfig {
		keys[key] = true
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		oldVal, inOld := oldConfig[key]
		newVal, inNew := newConfig[key]
		switch {
		case !inOld:
			diff.AddedKeys = append(diff.AddedKeys, key)
		case !inNew:
			diff.RemovedKeys = append(diff.RemovedKeys, key)
		case reflect.DeepEqual(oldVal, newVal):
			diff.IdenticalKeys = append(diff.IdenticalKeys, key)
		default:
			diff.ChangedValues = append(diff.ChangedValues, ValueChange{Key: key, OldValue: oldVal, NewValue: newVal})
		}
	}

	return diff
}

// checkNumericBound validates that a present field is numeric and within
// the inclusive bounds.
func (cv *ConfigValidator) checkNumericBound(result *ValidationResult, config RawConfig, field string, min, max float64) {
	v, ok := config[field]
	if !ok {
		return
	}
	n, isNum := asFloat(v)
	if !isNum {
		result.AddError(fmt.Sprintf("%s expects number, got %T", field, v))
		return
	}
	if n < min || n > max {
		result.AddError(fmt.Sprintf("%s must be between %v and %v, got %v", field, min, max, v))
	}
}

func typeName(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int32, int64, float32, float64:
		return "number"
	case map[string]interface{}:
		return "map"
	case []interface{}:
		return "list"
	default:
		return fmt.Sprintf("%T", value)
	}
}
