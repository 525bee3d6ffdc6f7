package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyGenerator(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		algorithm string
		wantErr   bool
	}{
		{"defaults", "", "", false},
		{"sha256", "aicache:", HashSHA256, false},
		{"sha512", "aicache:", HashSHA512, false},
		{"unsupported algorithm", "aicache:", "md5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kg, err := NewKeyGenerator(tt.prefix, tt.algorithm, 500)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, kg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, kg)
			}
		})
	}
}

func TestResponseKey_Deterministic(t *testing.T) {
	kg, err := NewKeyGenerator("aicache:", HashSHA256, 500)
	require.NoError(t, err)

	key1 := kg.ResponseKey("some user text", "summarize", "")
	key2 := kg.ResponseKey("some user text", "summarize", "")
	assert.Equal(t, key1, key2, "identical inputs must produce identical keys")

	assert.True(t, strings.HasPrefix(key1, "aicache:summarize:"))

	digest := key1[strings.LastIndex(key1, ":")+1:]
	assert.Len(t, digest, 64, "sha256 digest should be 64 hex characters")
	assert.Regexp(t, "^[0-9a-f]+$", digest)
}

func TestResponseKey_InputDimensions(t *testing.T) {
	kg, err := NewKeyGenerator("aicache:", HashSHA256, 500)
	require.NoError(t, err)

	base := kg.ResponseKey("some user text", "summarize", "")

	assert.NotEqual(t, base, kg.ResponseKey("other user text", "summarize", ""),
		"different text must produce a different key")
	assert.NotEqual(t, base, kg.ResponseKey("some user text", "sanitize", ""),
		"different operation must produce a different key")
	assert.NotEqual(t, base, kg.ResponseKey("some user text", "summarize", "what is this?"),
		"a question must produce a different key")
}

func TestResponseKey_OperationNormalization(t *testing.T) {
	kg, err := NewKeyGenerator("aicache:", HashSHA256, 500)
	require.NoError(t, err)

	key := kg.ResponseKey("text", "  Summarize Text  ", "")
	assert.True(t, strings.HasPrefix(key, "aicache:summarize_text:"), "got %s", key)

	key = kg.ResponseKey("text", "", "")
	assert.True(t, strings.HasPrefix(key, "aicache:default:"), "got %s", key)
}

func TestResponseKey_LongTextBounded(t *testing.T) {
	kg, err := NewKeyGenerator("aicache:", HashSHA256, 100)
	require.NoError(t, err)

	long := strings.Repeat("a", 50_000)
	key := kg.ResponseKey(long, "summarize", "")

	assert.Less(t, len(key), 250, "key length must not grow with text size")
	assert.Equal(t, key, kg.ResponseKey(long, "summarize", ""))
	assert.NotEqual(t, key, kg.ResponseKey(long+"b", "summarize", ""))
}

func TestResponseKey_SHA512(t *testing.T) {
	kg, err := NewKeyGenerator("aicache:", HashSHA512, 500)
	require.NoError(t, err)

	key := kg.ResponseKey("text", "answer", "")
	digest := key[strings.LastIndex(key, ":")+1:]
	assert.Len(t, digest, 128, "sha512 digest should be 128 hex characters")
}

func TestScanKey_ScannerDimensions(t *testing.T) {
	kg, err := NewKeyGenerator("aicache:", HashSHA256, 500)
	require.NoError(t, err)

	base := kg.ScanKey("input", "injection", "cfg-abc", "1.2.0")

	assert.True(t, strings.HasPrefix(base, "aicache:injection:"))
	assert.Equal(t, base, kg.ScanKey("input", "injection", "cfg-abc", "1.2.0"))
	assert.NotEqual(t, base, kg.ScanKey("input", "injection", "cfg-xyz", "1.2.0"),
		"scanner config change must produce a new key")
	assert.NotEqual(t, base, kg.ScanKey("input", "injection", "cfg-abc", "1.3.0"),
		"scanner version change must produce a new key")
}

func TestValidateKey(t *testing.T) {
	kg, err := NewKeyGenerator("aicache:", HashSHA256, 500)
	require.NoError(t, err)

	valid := kg.ResponseKey("text", "summarize", "")

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"generated key", valid, false},
		{"scan key", kg.ScanKey("text", "scan", "cfg", "v1"), false},
		{"empty", "", true},
		{"wrong prefix", "other:summarize:" + strings.Repeat("a", 64), true},
		{"control character", "aicache:op:\x01" + strings.Repeat("a", 63), true},
		{"missing hash", "aicache:summarize:", true},
		{"short hash", "aicache:summarize:abc123", true},
		{"non-hex hash", "aicache:summarize:" + strings.Repeat("z", 64), true},
		{"too long", "aicache:op:" + strings.Repeat("a", 300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := kg.ValidateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
