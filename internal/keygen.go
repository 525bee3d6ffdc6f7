package internal

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Supported content hash algorithms.
const (
	HashSHA256 = "sha256"
	HashSHA512 = "sha512"
)

// KeyGenerator defines the interface for generating and validating
// content-addressed cache keys.
type KeyGenerator interface {
	ResponseKey(text, operation, question string) string
	ScanKey(text, scanType, scannerConfigHash, scannerVersion string) string
	ValidateKey(key string) error
}

// ContentKeyGenerator builds cache keys of the form
//
//	<prefix><operation>:<hex content hash>
//
// where the hash covers every input dimension, so identical inputs always
// map to the same key and any single differing input produces a new key.
type ContentKeyGenerator struct {
	prefix        string
	algorithm     string
	hashThreshold int
}

// NewKeyGenerator creates a ContentKeyGenerator. An empty algorithm selects
// SHA-256; a non-positive threshold disables text pre-hashing.
func NewKeyGenerator(prefix, algorithm string, hashThreshold int) (*ContentKeyGenerator, error) {
	if algorithm == "" {
		algorithm = HashSHA256
	}
	if algorithm != HashSHA256 && algorithm != HashSHA512 {
		return nil, fmt.Errorf("unsupported hash algorithm %q (supported: %s, %s)", algorithm, HashSHA256, HashSHA512)
	}
	if prefix == "" {
		prefix = "aicache:"
	}
	return &ContentKeyGenerator{
		prefix:        prefix,
		algorithm:     algorithm,
		hashThreshold: hashThreshold,
	}, nil
}

// ResponseKey generates a cache key for an AI response.
// Format: <prefix><operation>:<content_hash(text|operation|question)>
func (kg *ContentKeyGenerator) ResponseKey(text, operation, question string) string {
	op := normalizeOperation(operation)
	material := strings.Join([]string{
		"v1",
		kg.textDigest(text),
		op,
		strings.TrimSpace(question),
	}, "\x1f")
	return fmt.Sprintf("%s%s:%s", kg.prefix, op, kg.hash(material))
}

// ScanKey generates a cache key for a security-scan result. The scanner
// configuration hash and scanner version are part of the key material so a
// scanner upgrade or reconfiguration never serves stale verdicts.
// Format: <prefix><scan_type>:<content_hash(text|scan_type|config|version)>
func (kg *ContentKeyGenerator) ScanKey(text, scanType, scannerConfigHash, scannerVersion string) string {
	st := normalizeOperation(scanType)
	material := strings.Join([]string{
		"v1",
		kg.textDigest(text),
		st,
		scannerConfigHash,
		scannerVersion,
	}, "\x1f")
	return fmt.Sprintf("%s%s:%s", kg.prefix, st, kg.hash(material))
}

// textDigest bounds the key material contributed by the text. Texts longer
// than the configured threshold are replaced by their hash plus length, so
// the final key hash runs over a bounded input no matter the payload size.
func (kg *ContentKeyGenerator) textDigest(text string) string {
	normalized := strings.TrimSpace(text)
	if kg.hashThreshold > 0 && len(normalized) > kg.hashThreshold {
		return fmt.Sprintf("h:%s:%d", kg.hash(normalized), len(normalized))
	}
	return normalized
}

// hash computes the hex digest of the material with the configured algorithm.
func (kg *ContentKeyGenerator) hash(material string) string {
	switch kg.algorithm {
	case HashSHA512:
		sum := sha512.Sum512([]byte(material))
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256([]byte(material))
		return hex.EncodeToString(sum[:])
	}
}

// normalizeOperation lowercases and trims an operation or scan-type name and
// replaces separators that would break the key format.
func normalizeOperation(operation string) string {
	op := strings.ToLower(strings.TrimSpace(operation))
	op = strings.ReplaceAll(op, ":", "_")
	op = strings.ReplaceAll(op, " ", "_")
	if op == "" {
		op = "default"
	}
	return op
}

var keyHexSuffix = regexp.MustCompile(`^[0-9a-f]+$`)

// ValidateKey validates that a cache key follows the expected format and
// Redis-safe constraints.
func (kg *ContentKeyGenerator) ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if !strings.HasPrefix(key, kg.prefix) {
		return fmt.Errorf("key must start with prefix %q: %s", kg.prefix, key)
	}

	// Control characters and null bytes are never valid in keys.
	for i, r := range key {
		if r < 32 || r == 127 {
			return fmt.Errorf("key contains control character at position %d: %s", i, key)
		}
	}

	// Conservative bound well under Redis's own key size limit.
	if len(key) > 250 {
		return fmt.Errorf("key exceeds maximum length of 250 characters")
	}

	rest := strings.TrimPrefix(key, kg.prefix)
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return fmt.Errorf("key must have the form <prefix><operation>:<hash>: %s", key)
	}

	digest := rest[idx+1:]
	wantLen := sha256.Size * 2
	if kg.algorithm == HashSHA512 {
		wantLen = sha512.Size * 2
	}
	if len(digest) != wantLen {
		return fmt.Errorf("key hash must be %d hex characters, got %d: %s", wantLen, len(digest), key)
	}
	if !keyHexSuffix.MatchString(digest) {
		return fmt.Errorf("key hash contains non-hex characters: %s", key)
	}

	return nil
}
