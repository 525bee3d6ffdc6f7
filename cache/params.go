package cache

import (
	"fmt"
	"sort"
)

// RawConfig is an untyped configuration mapping as supplied by callers or
// loaded from files and environment. It carries no invariants.
type RawConfig = map[string]interface{}

// paramKind declares the expected type of a known parameter.
type paramKind int

const (
	kindString paramKind = iota
	kindNumber
	kindBool
	kindMap
)

func (k paramKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindBool:
		return "bool"
	case kindMap:
		return "map"
	default:
		return "unknown"
	}
}

// genericParamTypes lists parameters consumed by the generic engine.
var genericParamTypes = map[string]paramKind{
	"redis_url":             kindString,
	"redis_password":        kindString,
	"redis_db":              kindNumber,
	"use_tls":               kindBool,
	"tls_cert_path":         kindString,
	"max_connections":       kindNumber,
	"connection_timeout":    kindNumber,
	"default_ttl":           kindNumber,
	"enable_l1_cache":       kindBool,
	"l1_cache_size":         kindNumber,
	"compression_threshold": kindNumber,
	"compression_level":     kindNumber,
	"enable_monitoring":     kindBool,
	"log_level":             kindString,
}

// aiParamTypes lists parameters consumed only by the AI overlay.
var aiParamTypes = map[string]paramKind{
	"enable_ai_cache":        kindBool,
	"text_hash_threshold":    kindNumber,
	"hash_algorithm":         kindString,
	"text_size_tiers":        kindMap,
	"operation_ttls":         kindMap,
	"enable_smart_promotion": kindBool,
	"max_text_length":        kindNumber,
	"key_prefix":             kindString,
}

// parameterAliases maps AI-surface parameter names to their generic engine
// equivalents. The value is carried over unchanged.
var parameterAliases = map[string]string{
	"memory_cache_size": "l1_cache_size",
}

// ParameterInfo is a read-only snapshot of the classification tables.
type ParameterInfo struct {
	AISpecificParams  []string          `json:"ai_specific_params"`
	GenericParams     []string          `json:"generic_params"`
	ParameterMappings map[string]string `json:"parameter_mappings"`
}

// ParameterMapper separates a flat configuration into generic engine
// parameters and AI overlay parameters, so one generic engine can be
// specialized without duplicating its logic.
type ParameterMapper struct{}

// NewParameterMapper creates a ParameterMapper.
func NewParameterMapper() *ParameterMapper {
	return &ParameterMapper{}
}

// MapAIToGeneric classifies every key of the input into exactly one of two
// disjoint buckets: generic engine parameters (aliases resolved, values
// preserved) and AI-specific parameters. Keys unknown to both tables stay
// untouched in the AI bucket. An alias that collides with its target under
// a different value is a ConfigurationError naming both source keys.
func (pm *ParameterMapper) MapAIToGeneric(params RawConfig) (RawConfig, RawConfig, error) {
	generic := make(RawConfig)
	aiSpecific := make(RawConfig)

	// Resolve aliases first so classification below sees only canonical
	// names.
	for alias, target := range parameterAliases {
		aliasVal, hasAlias := params[alias]
		if !hasAlias {
			continue
		}
		if targetVal, hasTarget := params[target]; hasTarget && !equalParamValues(aliasVal, targetVal) {
			return nil, nil, NewConfigurationError(
				fmt.Sprintf("parameters %q (%v) and %q (%v) resolve to the same setting with conflicting values",
					alias, aliasVal, target, targetVal), nil)
		}
		generic[target] = aliasVal
		// A sized in-process cache only makes sense with the L1 tier on.
		if _, explicit := params["enable_l1_cache"]; !explicit {
			generic["enable_l1_cache"] = true
		}
	}

	for key, value := range params {
		if _, isAlias := parameterAliases[key]; isAlias {
			continue
		}
		if _, ok := genericParamTypes[key]; ok {
			// An alias that resolved to this key already carried its
			// value over, after checking the two spellings agree.
			if _, resolved := generic[key]; !resolved {
				generic[key] = value
			}
			continue
		}
		// Known-AI and unknown keys both land in the AI bucket untouched.
		aiSpecific[key] = value
	}

	return generic, aiSpecific, nil
}

// ValidateParameterCompatibility type-checks and range-checks known
// parameters and flags logically incompatible combinations. Mere
// inefficiency is reported as conflicts or warnings, never as errors.
func (pm *ParameterMapper) ValidateParameterCompatibility(params RawConfig) *ValidationResult {
	result := NewValidationResult()

	for key, value := range params {
		kind, known := lookupParamKind(key)
		if !known {
			continue
		}

		if !matchesKind(value, kind) {
			result.AddError(fmt.Sprintf("%s expects %s, got %T", key, kind, value))
			continue
		}

		switch key {
		case "default_ttl", "connection_timeout", "text_hash_threshold", "max_text_length", "compression_threshold":
			if n, ok := asFloat(value); ok && n < 0 {
				result.AddError(fmt.Sprintf("%s cannot be negative, got %v", key, value))
			}
		case "l1_cache_size", "memory_cache_size", "max_connections":
			if n, ok := asFloat(value); ok && n <= 0 {
				result.AddError(fmt.Sprintf("%s must be positive, got %v", key, value))
			}
		case "compression_level":
			if n, ok := asFloat(value); ok && (n < 1 || n > 9) {
				result.AddError(fmt.Sprintf("compression_level must be between 1 and 9, got %v", value))
			}
		}
	}

	// Logical interactions between parameters.
	if size, hasSize := params["l1_cache_size"]; hasSize {
		if enabled, hasFlag := params["enable_l1_cache"]; hasFlag {
			if b, ok := enabled.(bool); ok && !b {
				result.AddConflict("l1_cache_size",
					fmt.Sprintf("l1_cache_size=%v is ignored because enable_l1_cache=false", size))
				result.AddRecommendation("set enable_l1_cache=true or remove l1_cache_size")
			}
		}
	}
	if tls, ok := params["use_tls"].(bool); ok && tls {
		if url, ok := params["redis_url"].(string); ok && len(url) >= 8 && url[:8] == "redis://" {
			result.AddWarning("use_tls=true with a redis:// URL; use rediss:// for a TLS connection")
		}
	}

	// Record how each known parameter classified.
	for key := range params {
		if _, ok := genericParamTypes[key]; ok {
			result.GenericParams = append(result.GenericParams, key)
		} else if _, ok := aiParamTypes[key]; ok {
			result.AISpecificParams = append(result.AISpecificParams, key)
		} else if _, ok := parameterAliases[key]; ok {
			result.GenericParams = append(result.GenericParams, key)
		}
	}
	sort.Strings(result.GenericParams)
	sort.Strings(result.AISpecificParams)

	return result
}

// GetParameterInfo returns a snapshot of the classification tables. The
// snapshot is deep-copied and sorted, so repeated calls return identical
// data and callers cannot corrupt the internal tables.
func (pm *ParameterMapper) GetParameterInfo() ParameterInfo {
	info := ParameterInfo{
		AISpecificParams:  make([]string, 0, len(aiParamTypes)),
		GenericParams:     make([]string, 0, len(genericParamTypes)),
		ParameterMappings: make(map[string]string, len(parameterAliases)),
	}
	for key := range aiParamTypes {
		info.AISpecificParams = append(info.AISpecificParams, key)
	}
	for key := range genericParamTypes {
		info.GenericParams = append(info.GenericParams, key)
	}
	for alias, target := range parameterAliases {
		info.ParameterMappings[alias] = target
	}
	sort.Strings(info.AISpecificParams)
	sort.Strings(info.GenericParams)
	return info
}

// lookupParamKind finds the declared kind of a known parameter, resolving
// aliases to their target's kind.
func lookupParamKind(key string) (paramKind, bool) {
	if kind, ok := genericParamTypes[key]; ok {
		return kind, true
	}
	if kind, ok := aiParamTypes[key]; ok {
		return kind, true
	}
	if target, ok := parameterAliases[key]; ok {
		return lookupParamKind(target)
	}
	return 0, false
}

// matchesKind checks a dynamic value against a declared kind. Numeric JSON
// values arrive as float64, so every integral Go type is accepted too.
func matchesKind(value interface{}, kind paramKind) bool {
	switch kind {
	case kindString:
		_, ok := value.(string)
		return ok
	case kindBool:
		_, ok := value.(bool)
		return ok
	case kindNumber:
		_, ok := asFloat(value)
		return ok
	case kindMap:
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return false
	}
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func equalParamValues(a, b interface{}) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}
