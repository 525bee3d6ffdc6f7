package cache

import (
	"context"
	"time"
)

// Cache defines the operations shared by every cache implementation in this
// package. Values are JSON-serialized on write and decoded into dest on
// read; a miss is reported through the found flag, never as an error.
type Cache interface {
	// Get retrieves the value for key into dest. found is false on a miss.
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)

	// Set stores value under key. A non-positive ttl selects the cache's
	// default TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes key from every tier. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present in any tier.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes every entry owned by this cache instance.
	Clear(ctx context.Context) error

	// GetStatistics returns a snapshot of operation counters and the live
	// entry count of the active tier.
	GetStatistics(ctx context.Context) Statistics

	// Close releases the cache's resources. A closed cache must not be
	// reused.
	Close() error
}

// Connector is the optional connection capability. Backends without a
// network dependency implement it as an always-ready no-op; the registry
// treats a false or error result as degraded, not fatal.
type Connector interface {
	Connect(ctx context.Context) (bool, error)
}

// Pinger is the optional lightweight liveness capability. Backends that
// implement it let health checks avoid a synthetic write/read round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnState tracks the lifecycle of a network-backed cache instance.
type ConnState int32

const (
	// StateUninitialized is the state before any connection attempt.
	StateUninitialized ConnState = iota
	// StateConnecting is the state during the Redis handshake.
	StateConnecting
	// StateConnected is the healthy state with Redis reachable.
	StateConnected
	// StateDegraded is the memory-only state after a failed handshake.
	StateDegraded
	// StateClosed is terminal; no transition leaves it.
	StateClosed
)

// String returns the string representation of ConnState.
func (s ConnState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
