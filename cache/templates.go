package cache

import (
	"fmt"
	"sort"
	"strings"
)

// configTemplates holds the named, pre-validated configurations. The
// registry is immutable; retrieval always returns a deep copy.
var configTemplates = map[string]RawConfig{
	"fast_development": {
		"name":                  "fast_development",
		"strategy":              "cache_aside",
		"redis_url":             "redis://localhost:6379/0",
		"default_ttl":           300,
		"max_connections":       5,
		"connection_timeout":    2,
		"memory_cache_size":     100,
		"compression_threshold": 0,
		"compression_level":     1,
		"enable_ai_cache":       false,
		"enable_monitoring":     false,
		"log_level":             "debug",
		"environment_contexts":  []interface{}{"development"},
	},
	"robust_production": {
		"name":                  "robust_production",
		"strategy":              "write_through",
		"redis_url":             "rediss://redis.internal:6379/0",
		"use_tls":               true,
		"default_ttl":           3600,
		"max_connections":       50,
		"connection_timeout":    10,
		"memory_cache_size":     1000,
		"compression_threshold": 4096,
		"compression_level":     6,
		"enable_ai_cache":       false,
		"enable_monitoring":     true,
		"log_level":             "warning",
		"environment_contexts":  []interface{}{"production", "staging"},
	},
	"ai_optimized": {
		"name":                  "ai_optimized",
		"strategy":              "cache_aside",
		"redis_url":             "redis://localhost:6379/1",
		"default_ttl":           1800,
		"max_connections":       20,
		"connection_timeout":    5,
		"memory_cache_size":     500,
		"compression_threshold": 2048,
		"compression_level":     6,
		"enable_ai_cache":       true,
		"enable_monitoring":     true,
		"log_level":             "info",
		"environment_contexts":  []interface{}{"production"},
		"ai_optimizations": map[string]interface{}{
			"text_hash_threshold":    500,
			"hash_algorithm":         "sha256",
			"enable_smart_promotion": true,
			"max_text_length":        100000,
			"operation_ttls": map[string]interface{}{
				"summarize": 7200,
				"sanitize":  3600,
				"answer":    600,
			},
		},
	},
}

// GetTemplate returns a deep copy of the named template, so caller
// mutation cannot corrupt the registry. An unknown name is a
// ConfigurationError enumerating the valid names.
func (cv *ConfigValidator) GetTemplate(name string) (RawConfig, error) {
	tpl, ok := configTemplates[name]
	if !ok {
		return nil, NewConfigurationError(
			fmt.Sprintf("unknown template %q, valid templates: %s", name, strings.Join(cv.ListTemplates(), ", ")), nil)
	}
	return deepCopyConfig(tpl), nil
}

// ListTemplates returns the available template names, sorted.
func (cv *ConfigValidator) ListTemplates() []string {
	names := make([]string, 0, len(configTemplates))
	for name := range configTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// deepCopyConfig recursively copies a configuration mapping.
func deepCopyConfig(src RawConfig) RawConfig {
	dst := make(RawConfig, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, inner := range val {
			m[k] = deepCopyValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, inner := range val {
			s[i] = deepCopyValue(inner)
		}
		return s
	default:
		return val
	}
}
