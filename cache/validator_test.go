package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPreset() RawConfig {
	return RawConfig{
		"name":                  "test_preset",
		"strategy":              "cache_aside",
		"default_ttl":           600,
		"max_connections":       10,
		"connection_timeout":    5,
		"memory_cache_size":     500,
		"compression_threshold": 2048,
		"compression_level":     6,
		"enable_ai_cache":       false,
		"enable_monitoring":     true,
		"log_level":             "info",
		"environment_contexts":  []interface{}{"development", "testing"},
	}
}

func TestValidatePreset_Valid(t *testing.T) {
	cv := NewConfigValidator(nil)

	result := cv.ValidatePreset(validPreset())
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidatePreset_Empty(t *testing.T) {
	cv := NewConfigValidator(nil)

	result := cv.ValidatePreset(RawConfig{})
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "preset cannot be empty")
}

func TestValidatePreset_MissingFields(t *testing.T) {
	cv := NewConfigValidator(nil)

	preset := validPreset()
	delete(preset, "strategy")
	delete(preset, "log_level")

	result := cv.ValidatePreset(preset)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, `missing required field "strategy"`)
	assert.Contains(t, result.Errors, `missing required field "log_level"`)
}

func TestValidatePreset_OutOfRange(t *testing.T) {
	cv := NewConfigValidator(nil)

	preset := validPreset()
	preset["default_ttl"] = -1
	preset["max_connections"] = 150

	result := cv.ValidatePreset(preset)
	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "default_ttl")
	assert.Contains(t, result.Errors[1], "max_connections")
}

func TestValidatePreset_LogLevel(t *testing.T) {
	cv := NewConfigValidator(nil)

	preset := validPreset()
	preset["log_level"] = "verbose"

	result := cv.ValidatePreset(preset)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], `log_level "verbose"`)
}

func TestValidatePreset_UnknownEnvironmentContext(t *testing.T) {
	cv := NewConfigValidator(nil)

	preset := validPreset()
	preset["environment_contexts"] = []interface{}{"development", "qa-cluster-7"}

	result := cv.ValidatePreset(preset)
	// Unknown contexts only steer auto-detection, so they warn.
	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "qa-cluster-7")
}

func TestValidatePreset_AIOptimizations(t *testing.T) {
	cv := NewConfigValidator(nil)

	t.Run("missing block warns", func(t *testing.T) {
		preset := validPreset()
		preset["enable_ai_cache"] = true

		result := cv.ValidatePreset(preset)
		assert.True(t, result.IsValid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "ai_optimizations")
	})

	t.Run("threshold out of range", func(t *testing.T) {
		preset := validPreset()
		preset["enable_ai_cache"] = true
		preset["ai_optimizations"] = map[string]interface{}{
			"text_hash_threshold": 50,
		}

		result := cv.ValidatePreset(preset)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "text_hash_threshold")
	})

	t.Run("operation ttl too short", func(t *testing.T) {
		preset := validPreset()
		preset["enable_ai_cache"] = true
		preset["ai_optimizations"] = map[string]interface{}{
			"operation_ttls": map[string]interface{}{"summarize": 5},
		}

		result := cv.ValidatePreset(preset)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "operation_ttls[summarize]")
	})

	t.Run("block ignored when ai cache disabled", func(t *testing.T) {
		preset := validPreset()
		preset["ai_optimizations"] = map[string]interface{}{
			"text_hash_threshold": 50,
		}

		result := cv.ValidatePreset(preset)
		assert.True(t, result.IsValid)
	})
}

func TestValidateConfiguration(t *testing.T) {
	cv := NewConfigValidator(nil)

	t.Run("empty", func(t *testing.T) {
		result := cv.ValidateConfiguration(RawConfig{})
		assert.False(t, result.IsValid)
	})

	t.Run("missing redis_url", func(t *testing.T) {
		result := cv.ValidateConfiguration(RawConfig{"default_ttl": 600})
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "redis_url")
	})

	t.Run("bad scheme", func(t *testing.T) {
		result := cv.ValidateConfiguration(RawConfig{"redis_url": "http://localhost:6379"})
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "rediss://")
	})

	t.Run("tls scheme mismatch warns both ways", func(t *testing.T) {
		result := cv.ValidateConfiguration(RawConfig{
			"redis_url": "rediss://redis.internal:6379",
			"use_tls":   false,
		})
		assert.True(t, result.IsValid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "the URL scheme wins")

		result = cv.ValidateConfiguration(RawConfig{
			"redis_url": "redis://localhost:6379",
			"use_tls":   true,
		})
		assert.True(t, result.IsValid)
		assert.NotEmpty(t, result.Warnings)
	})

	t.Run("pool exhaustion risk warns", func(t *testing.T) {
		result := cv.ValidateConfiguration(RawConfig{
			"redis_url":          "redis://localhost:6379",
			"max_connections":    80,
			"connection_timeout": 2,
		})
		assert.True(t, result.IsValid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "pool exhaustion")
	})

	t.Run("low hash threshold warns", func(t *testing.T) {
		result := cv.ValidateConfiguration(RawConfig{
			"redis_url":           "redis://localhost:6379",
			"text_hash_threshold": 10,
		})
		assert.True(t, result.IsValid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "key generation cost")
	})
}

func TestValidateCustomOverrides(t *testing.T) {
	cv := NewConfigValidator(nil)

	result := cv.ValidateCustomOverrides(RawConfig{
		"default_ttl":    900,
		"l1_cache_size":  "big",
		"plugin_setting": true,
	})

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "l1_cache_size expects number, got string", result.Errors[0])
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], `"plugin_setting"`)
}

func TestCompareConfigurations(t *testing.T) {
	cv := NewConfigValidator(nil)

	oldConfig := RawConfig{
		"redis_url":   "redis://localhost:6379",
		"default_ttl": 600,
		"log_level":   "debug",
	}
	newConfig := RawConfig{
		"redis_url":       "redis://localhost:6379",
		"default_ttl":     1800,
		"max_connections": 20,
	}

	diff := cv.CompareConfigurations(oldConfig, newConfig)

	assert.Equal(t, []string{"max_connections"}, diff.AddedKeys)
	assert.Equal(t, []string{"log_level"}, diff.RemovedKeys)
	assert.Equal(t, []string{"redis_url"}, diff.IdenticalKeys)
	require.Len(t, diff.ChangedValues, 1)
	assert.Equal(t, "default_ttl", diff.ChangedValues[0].Key)
	assert.Equal(t, 600, diff.ChangedValues[0].OldValue)
	assert.Equal(t, 1800, diff.ChangedValues[0].NewValue)

	// The diff is deterministic across repeated calls.
	assert.Equal(t, diff, cv.CompareConfigurations(oldConfig, newConfig))
}

func TestCompareConfigurations_NestedValues(t *testing.T) {
	cv := NewConfigValidator(nil)

	oldConfig := RawConfig{"operation_ttls": map[string]interface{}{"summarize": 600}}
	newConfig := RawConfig{"operation_ttls": map[string]interface{}{"summarize": 600}}

	diff := cv.CompareConfigurations(oldConfig, newConfig)
	assert.Equal(t, []string{"operation_ttls"}, diff.IdenticalKeys)
	assert.Empty(t, diff.ChangedValues)
}

func TestGetTemplate(t *testing.T) {
	cv := NewConfigValidator(nil)

	tpl, err := cv.GetTemplate("ai_optimized")
	require.NoError(t, err)
	assert.Equal(t, true, tpl["enable_ai_cache"])

	// Templates must validate against their own schema.
	result := cv.ValidatePreset(tpl)
	assert.True(t, result.IsValid, "errors: %v", result.Errors)
}

func TestGetTemplate_Immutable(t *testing.T) {
	cv := NewConfigValidator(nil)

	tpl, err := cv.GetTemplate("ai_optimized")
	require.NoError(t, err)

	tpl["default_ttl"] = -999
	tpl["ai_optimizations"].(map[string]interface{})["text_hash_threshold"] = -1

	fresh, err := cv.GetTemplate("ai_optimized")
	require.NoError(t, err)
	assert.Equal(t, 1800, fresh["default_ttl"])
	assert.Equal(t, 500, fresh["ai_optimizations"].(map[string]interface{})["text_hash_threshold"])
}

func TestGetTemplate_Unknown(t *testing.T) {
	cv := NewConfigValidator(nil)

	tpl, err := cv.GetTemplate("turbo_mode")
	require.Error(t, err)
	assert.Nil(t, tpl)
	assert.True(t, IsConfigurationError(err))
	// The error names every valid alternative.
	assert.Contains(t, err.Error(), "ai_optimized")
	assert.Contains(t, err.Error(), "fast_development")
	assert.Contains(t, err.Error(), "robust_production")
}

func TestListTemplates(t *testing.T) {
	cv := NewConfigValidator(nil)

	assert.Equal(t, []string{"ai_optimized", "fast_development", "robust_production"}, cv.ListTemplates())
}
