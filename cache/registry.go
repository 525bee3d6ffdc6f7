package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"time"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Health statuses reported by HealthStatus.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	HealthError     = "error"
)

// healthProbeTimeout bounds each health-check round trip so a hung backend
// degrades instead of stalling the caller.
const healthProbeTimeout = 5 * time.Second

// Fingerprint derives the stable registry key for a resolved configuration:
// the SHA-256 of its canonical JSON encoding. Equal configurations always
// produce equal fingerprints regardless of key order.
func Fingerprint(config RawConfig) string {
	// encoding/json sorts map keys, which makes the encoding canonical.
	data, err := json.Marshal(config)
	if err != nil {
		// Unencodable values cannot collide meaningfully; fall back to the
		// textual representation.
		data = fmt.Appendf(nil, "%#v", config)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// registryEntry is a non-owning reference to a registered cache. resolve
// returns nil once the instance has been garbage collected.
type registryEntry struct {
	resolve   func() Cache
	createdAt time.Time
}

// weakResolver wraps a concrete cache instance in a weak reference so the
// registry never keeps an otherwise-unreachable cache alive. Instances of
// unknown concrete types are held strongly; dedup still works, collection
// doesn't.
func weakResolver(c Cache) func() Cache {
	switch v := c.(type) {
	case *AICache:
		p := weak.Make(v)
		return func() Cache {
			if live := p.Value(); live != nil {
				return live
			}
			return nil
		}
	case *RedisCache:
		p := weak.Make(v)
		return func() Cache {
			if live := p.Value(); live != nil {
				return live
			}
			return nil
		}
	case *MemoryCache:
		p := weak.Make(v)
		return func() Cache {
			if live := p.Value(); live != nil {
				return live
			}
			return nil
		}
	default:
		return func() Cache { return c }
	}
}

// CleanupStats summarizes a registry cleanup sweep.
type CleanupStats struct {
	TotalEntries       int      `json:"total_entries"`
	ActiveCaches       int      `json:"active_caches"`
	DeadReferences     int      `json:"dead_references"`
	DisconnectedCaches int      `json:"disconnected_caches"`
	Errors             []string `json:"errors"`
}

// HealthReport is the structured result of a cache health check, suitable
// for backing an operational health endpoint.
type HealthReport struct {
	CacheType     string      `json:"cache_type"`
	Status        string      `json:"status"`
	PingAvailable bool        `json:"ping_available"`
	PingSuccess   bool        `json:"ping_success"`
	OperationTest bool        `json:"operation_test"`
	Statistics    *Statistics `json:"statistics,omitempty"`
	Warnings      []string    `json:"warnings,omitempty"`
	Errors        []string    `json:"errors,omitempty"`
}

// Registry deduplicates cache construction per configuration fingerprint.
// It holds weak references so registration never extends a cache's
// lifetime, and it orchestrates connect/disconnect around the instances it
// knows about. Construct one per process and inject it where caches are
// built; tests construct their own.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	logger  *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		logger:  logger,
	}
}

// GetOrCreate returns the live cache registered under key, or constructs,
// registers and returns a new one. The registry lock covers only the map
// work; connection assurance runs outside it so slow handshakes never
// block unrelated lookups.
func (r *Registry) GetOrCreate(ctx context.Context, key string, factory func() (Cache, error)) (Cache, error) {
	r.mu.Lock()

	if entry, ok := r.entries[key]; ok {
		if live := entry.resolve(); live != nil {
			r.mu.Unlock()
			r.ensureConnected(ctx, key, live)
			return live, nil
		}
		// The instance was collected; drop the stale entry and rebuild.
		delete(r.entries, key)
	}

	built, err := factory()
	if err != nil {
		r.mu.Unlock()
		return nil, NewInfrastructureError("cache construction failed", err, map[string]interface{}{
			"registry_key": key,
			"factory":      factoryName(factory),
			"error":        err.Error(),
		})
	}

	r.entries[key] = &registryEntry{
		resolve:   weakResolver(built),
		createdAt: time.Now(),
	}
	r.mu.Unlock()

	r.ensureConnected(ctx, key, built)
	return built, nil
}

// Len returns the number of registered entries, live or dead.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Cleanup disconnects every live registered cache, drops dead references
// and clears the registry. It never returns an error; per-entry failures
// are recorded in the returned stats.
func (r *Registry) Cleanup() CleanupStats {
	r.mu.Lock()
	snapshot := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	stats := CleanupStats{
		TotalEntries: len(snapshot),
		Errors:       []string{},
	}

	for key, entry := range snapshot {
		live := entry.resolve()
		if live == nil {
			stats.DeadReferences++
			continue
		}
		stats.ActiveCaches++

		if err := closeQuietly(live); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		stats.DisconnectedCaches++
	}

	r.logger.Info("registry cleanup complete",
		zap.Int("total", stats.TotalEntries),
		zap.Int("active", stats.ActiveCaches),
		zap.Int("dead", stats.DeadReferences),
		zap.Int("errors", len(stats.Errors)))

	return stats
}

// closeQuietly closes a cache, converting a panic into an error.
func closeQuietly(c Cache) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("close panicked: %v", rec)
		}
	}()
	return c.Close()
}

// HealthStatus probes a cache instance. It prefers the lightweight Ping
// capability; caches without one get a synthetic set/get/delete round
// trip. A ping failure is degraded (the cache may still serve), a failed
// operation test is unhealthy, and any unexpected panic is reported as
// status "error" rather than propagated.
func (r *Registry) HealthStatus(ctx context.Context, c Cache) (report HealthReport) {
	report = HealthReport{
		CacheType: fmt.Sprintf("%T", c),
		Status:    HealthHealthy,
	}

	defer func() {
		if rec := recover(); rec != nil {
			report.Status = HealthError
			report.Errors = append(report.Errors, fmt.Sprintf("health check panicked: %v", rec))
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	if pinger, ok := c.(Pinger); ok {
		report.PingAvailable = true
		if err := pinger.Ping(probeCtx); err != nil {
			report.Status = HealthDegraded
			report.Warnings = append(report.Warnings, fmt.Sprintf("ping failed: %v", err))
		} else {
			report.PingSuccess = true
		}
	} else if err := r.operationTest(probeCtx, c); err != nil {
		report.Status = HealthUnhealthy
		report.Errors = append(report.Errors, fmt.Sprintf("operation test failed: %v", err))
	} else {
		report.OperationTest = true
	}

	r.collectStatistics(probeCtx, c, &report)
	return report
}

// operationTest performs a synthetic set/get/delete round trip.
func (r *Registry) operationTest(ctx context.Context, c Cache) error {
	key := "healthcheck:" + uuid.NewString()
	want := "ok"

	if err := c.Set(ctx, key, want, time.Minute); err != nil {
		return fmt.Errorf("set: %w", err)
	}

	var got string
	found, err := c.Get(ctx, key, &got)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if !found || got != want {
		return fmt.Errorf("get returned found=%v value=%q, want %q", found, got, want)
	}

	return c.Delete(ctx, key)
}

// collectStatistics attaches a statistics snapshot to the report. Failure
// here only downgrades to a warning.
func (r *Registry) collectStatistics(ctx context.Context, c Cache, report *HealthReport) {
	defer func() {
		if rec := recover(); rec != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("statistics unavailable: %v", rec))
		}
	}()
	stats := c.GetStatistics(ctx)
	report.Statistics = &stats
}

// ensureConnected brings a cache online before handing it out. A failed or
// refused connection is degraded, not fatal: the instance is still
// returned with a warning logged. Caches without the Connector capability
// are assumed ready.
func (r *Registry) ensureConnected(ctx context.Context, key string, c Cache) {
	connector, ok := c.(Connector)
	if !ok {
		return
	}
	connected, err := connector.Connect(ctx)
	if err != nil || !connected {
		r.logger.Warn("cache returned in degraded state",
			zap.String("registry_key", key),
			zap.Error(err))
	}
}

// factoryName resolves a human-readable identifier for a factory function.
func factoryName(factory interface{}) string {
	if fn := runtime.FuncForPC(reflect.ValueOf(factory).Pointer()); fn != nil {
		return fn.Name()
	}
	return fmt.Sprintf("%T", factory)
}
