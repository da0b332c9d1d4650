package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when a payload exceeds a tier's capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCorrupted is returned when stored data cannot be read back
	ErrCorrupted = errors.New("cache data corrupted")

	// ErrClosed is returned for operations on a closed cache
	ErrClosed = errors.New("cache closed")
)

// Tier identifies a cache level
type Tier int

const (
	// TierMemory is the in-process LRU tier (fastest)
	TierMemory Tier = iota

	// TierDisk is the persistent local tier
	TierDisk

	// TierRemote is the shared key-value blob tier
	TierRemote
)

// String returns the string representation of the tier
func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierDisk:
		return "disk"
	case TierRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Stats holds performance counters for a single tier
type Stats struct {
	// Configuration
	MaxBytes   int64 // Byte ceiling, 0 means unbounded
	MaxEntries int   // Entry ceiling, 0 means unbounded

	// Current state
	Bytes   int64 // Current payload bytes
	Entries int   // Current entry count

	// Performance counters
	Hits      int64
	Misses    int64
	Evictions int64
	Errors    int64 // Failed reads or writes, remote only in practice

	// Timing
	LastAccess time.Time
	LastEvict  time.Time
}

// HitRate returns hits / (hits + misses), or 0 before any lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config holds configuration for the tiered cache
type Config struct {
	// Disk tier
	Dir     string // Directory for cache files
	Name    string // Store name, becomes part of the directory layout
	Version int    // Bumping invalidates all persisted entries

	// Memory tier
	MemoryMaxEntries int
	MemoryMaxBytes   int64

	// Disk tier bounds
	DiskMaxBytes     int64
	CompressionLevel int // Zstd level, 0 disables compression

	// Remote tier, disabled when Endpoint is empty
	RemoteEndpoint string
	RemoteTimeout  time.Duration

	// Cleanup
	TTL             time.Duration // Disk entries older than this are removed, 0 disables
	CleanupInterval time.Duration // How often the janitor runs, 0 disables
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Name:             "audio",
		Version:          1,
		MemoryMaxEntries: 64,
		MemoryMaxBytes:   32 * 1024 * 1024,
		DiskMaxBytes:     256 * 1024 * 1024,
		CompressionLevel: 3,
		RemoteTimeout:    2 * time.Second,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}
