package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryCache is a bounded in-process cache with LRU eviction and per-entry
// TTL. It serves two roles: the L1 tier of the Redis-backed engine, and the
// standalone fallback cache when Redis is unreachable in lenient mode.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxSize    int
	defaultTTL time.Duration
	stats      statsRecorder
	logger     *zap.Logger
	closed     bool
}

type memoryEntry struct {
	key       string
	data      []byte
	createdAt time.Time
	expiresAt time.Time // zero means no expiry
	hitCount  int64
}

// NewMemoryCache creates a MemoryCache with the given capacity and default
// TTL. A non-positive maxSize falls back to 100 entries.
func NewMemoryCache(maxSize int, defaultTTL time.Duration, logger *zap.Logger) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Connect implements Connector. An in-process cache is always ready.
func (mc *MemoryCache) Connect(ctx context.Context) (bool, error) {
	return true, nil
}

// Get retrieves the value for key into dest.
func (mc *MemoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	start := time.Now()

	mc.mu.Lock()
	elem, ok := mc.entries[key]
	if !ok {
		mc.mu.Unlock()
		mc.stats.recordMiss(time.Since(start))
		return false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		mc.removeLocked(elem)
		mc.mu.Unlock()
		mc.stats.recordMiss(time.Since(start))
		return false, nil
	}

	entry.hitCount++
	mc.order.MoveToFront(elem)
	data := entry.data
	mc.mu.Unlock()

	if err := json.Unmarshal(data, dest); err != nil {
		mc.stats.recordError()
		return false, NewSerializationError(key, "failed to decode cached value", err)
	}

	mc.stats.recordHit(1, time.Since(start))
	return true, nil
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (mc *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		mc.stats.recordError()
		return NewSerializationError(key, "failed to encode value", err)
	}

	if ttl <= 0 {
		ttl = mc.defaultTTL
	}

	now := time.Now()
	entry := &memoryEntry{
		key:       key,
		data:      data,
		createdAt: now,
	}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	mc.mu.Lock()
	if elem, ok := mc.entries[key]; ok {
		elem.Value = entry
		mc.order.MoveToFront(elem)
	} else {
		mc.entries[key] = mc.order.PushFront(entry)
		for mc.order.Len() > mc.maxSize {
			mc.removeLocked(mc.order.Back())
		}
	}
	mc.mu.Unlock()

	mc.stats.recordSet()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	if elem, ok := mc.entries[key]; ok {
		mc.removeLocked(elem)
	}
	mc.mu.Unlock()

	mc.stats.recordDelete()
	return nil
}

// Exists reports whether key is present and unexpired.
func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	elem, ok := mc.entries[key]
	if !ok {
		return false, nil
	}
	if elem.Value.(*memoryEntry).expired(time.Now()) {
		mc.removeLocked(elem)
		return false, nil
	}
	return true, nil
}

// Clear removes every entry.
func (mc *MemoryCache) Clear(ctx context.Context) error {
	mc.mu.Lock()
	mc.entries = make(map[string]*list.Element)
	mc.order.Init()
	mc.mu.Unlock()
	return nil
}

// GetStatistics returns a snapshot of the counters and current entry count.
func (mc *MemoryCache) GetStatistics(ctx context.Context) Statistics {
	mc.mu.Lock()
	size := int64(mc.order.Len())
	mc.mu.Unlock()
	return mc.stats.snapshot(size)
}

// Len returns the current number of entries.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

// Close releases the cache's entries.
func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closed {
		return nil
	}
	mc.closed = true
	mc.entries = make(map[string]*list.Element)
	mc.order.Init()
	return nil
}

// removeLocked drops an element; caller holds mc.mu.
func (mc *MemoryCache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	entry := elem.Value.(*memoryEntry)
	delete(mc.entries, entry.key)
	mc.order.Remove(elem)
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
