package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Manager coordinates the cache tiers. Lookups walk memory, disk, then
// remote; hits below the top are promoted so the next lookup is
// cheaper. All tiers tolerate interleaved use from playback, prefetch,
// and cleanup.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	remote *RemoteCache // nil when no endpoint is configured

	config Config

	// Cleanup goroutine control
	cleanupStop   chan struct{}
	cleanupTicker *time.Ticker
	cleanupWg     sync.WaitGroup

	// Metrics
	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates per-tier counters with cross-tier totals.
type ManagerStats struct {
	Memory Stats
	Disk   Stats
	Remote Stats

	MemoryHits  int64
	DiskHits    int64
	RemoteHits  int64
	Misses      int64
	Promotions  int64
	LastCleanup time.Time
	CleanupRuns int64
}

// Lookups returns the total number of Get calls observed.
func (s ManagerStats) Lookups() int64 {
	return s.MemoryHits + s.DiskHits + s.RemoteHits + s.Misses
}

// HitRate returns the cross-tier hit rate, or 0 before any lookups.
func (s ManagerStats) HitRate() float64 {
	total := s.Lookups()
	if total == 0 {
		return 0
	}
	return float64(total-s.Misses) / float64(total)
}

// NewManager creates the tiered cache described by config.
func NewManager(config Config) (*Manager, error) {
	if config.Dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
		}
		config.Dir = filepath.Join(base, "shravan")
	}
	if config.Name == "" {
		config.Name = "audio"
	}

	memory := NewMemoryCache(config.MemoryMaxEntries, config.MemoryMaxBytes)

	disk, err := NewDiskCache(config.Dir, config.Name, config.Version, config.DiskMaxBytes, config.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	var remote *RemoteCache
	if config.RemoteEndpoint != "" {
		remote = NewRemoteCache(config.RemoteEndpoint, config.RemoteTimeout)
	}

	m := &Manager{
		memory:      memory,
		disk:        disk,
		remote:      remote,
		config:      config,
		cleanupStop: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		m.startCleanup()
	}

	return m, nil
}

// Get walks the tiers for the (language, normalized text) pair. The
// context bounds the remote lookup only; memory and disk never block
// on it.
func (m *Manager) Get(ctx context.Context, lang, text string) ([]byte, any, bool) {
	key := Key(lang, text)

	if data, handle, ok := m.memory.Get(key); ok {
		m.count(func(s *ManagerStats) { s.MemoryHits++ })
		return data, handle, true
	}

	if data, ok := m.disk.Get(key); ok {
		m.count(func(s *ManagerStats) { s.DiskHits++; s.Promotions++ })
		m.promote(key, data)
		return data, nil, true
	}

	if m.remote != nil {
		if data, ok := m.remote.Get(ctx, lang, key); ok {
			m.count(func(s *ManagerStats) { s.RemoteHits++; s.Promotions++ })
			m.promote(key, data)
			if err := m.disk.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
				m.count(func(s *ManagerStats) { s.Disk.Errors++ })
			}
			return data, nil, true
		}
	}

	m.count(func(s *ManagerStats) { s.Misses++ })
	return nil, nil, false
}

// Put writes the payload through the local tiers and uploads to the
// remote tier in the background. A payload too large for one tier
// still lands in the others.
func (m *Manager) Put(ctx context.Context, lang, text string, payload []byte) error {
	key := Key(lang, text)

	var errs []error
	if err := m.memory.Put(key, payload); err != nil && !errors.Is(err, ErrItemTooLarge) {
		errs = append(errs, fmt.Errorf("memory tier: %w", err))
	}
	if err := m.disk.Put(key, payload); err != nil && !errors.Is(err, ErrItemTooLarge) {
		errs = append(errs, fmt.Errorf("disk tier: %w", err))
	}

	if m.remote != nil {
		blob := make([]byte, len(payload))
		copy(blob, payload)
		go func() {
			_ = m.remote.Put(context.WithoutCancel(ctx), lang, key, blob)
		}()
	}

	return errors.Join(errs...)
}

// Attach hands a decoded handle to the memory tier entry for the pair.
// The release hook runs when the entry leaves the tier.
func (m *Manager) Attach(lang, text string, handle any, release func()) {
	m.memory.Attach(Key(lang, text), handle, release)
}

// Contains reports whether a local tier holds the pair. The remote
// tier is never consulted, so this stays cheap enough for prefetch
// planning.
func (m *Manager) Contains(lang, text string) bool {
	key := Key(lang, text)
	return m.memory.Contains(key) || m.disk.Contains(key)
}

// Delete removes the pair from the local tiers.
func (m *Manager) Delete(lang, text string) error {
	key := Key(lang, text)
	return errors.Join(m.memory.Delete(key), m.disk.Delete(key))
}

// Clear empties the local tiers. Remote blobs are shared with other
// clients and are left alone.
func (m *Manager) Clear() error {
	return errors.Join(m.memory.Clear(), m.disk.Clear())
}

// Clean removes expired disk entries and evicts down to capacity. It
// reports how many entries were removed.
func (m *Manager) Clean() int {
	removed := 0
	if m.config.TTL > 0 {
		removed += m.disk.RemoveOlderThan(time.Now().Add(-m.config.TTL))
	}
	if m.config.DiskMaxBytes > 0 && m.disk.Size() > m.config.DiskMaxBytes {
		removed += m.disk.EvictLRU()
	}
	return removed
}

// Stats returns a snapshot across all tiers.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := m.stats
	m.mu.Unlock()

	stats.Memory = m.memory.Stats()
	stats.Disk = m.disk.Stats()
	if m.remote != nil {
		stats.Remote = m.remote.Stats()
	}
	return stats
}

// Dir returns the disk tier's store directory.
func (m *Manager) Dir() string {
	return m.disk.dir
}

// Close stops the cleanup routine and persists the disk manifest.
func (m *Manager) Close() error {
	if m.cleanupTicker != nil {
		close(m.cleanupStop)
		m.cleanupWg.Wait()
		m.cleanupTicker.Stop()
		m.cleanupTicker = nil
	}

	m.memory.Clear()
	return m.disk.Close()
}

// promote copies a payload into the memory tier, best effort.
func (m *Manager) promote(key string, data []byte) {
	_ = m.memory.Put(key, data)
}

func (m *Manager) count(update func(*ManagerStats)) {
	m.mu.Lock()
	update(&m.stats)
	m.mu.Unlock()
}

// startCleanup starts the background janitor.
func (m *Manager) startCleanup() {
	m.cleanupTicker = time.NewTicker(m.config.CleanupInterval)
	m.cleanupWg.Add(1)

	go func() {
		defer m.cleanupWg.Done()
		for {
			select {
			case <-m.cleanupTicker.C:
				m.runCleanup()
			case <-m.cleanupStop:
				return
			}
		}
	}()
}

func (m *Manager) runCleanup() {
	m.count(func(s *ManagerStats) {
		s.CleanupRuns++
		s.LastCleanup = time.Now()
	})

	m.Clean()
	if m.config.TTL > 0 {
		m.memory.Prune(m.config.TTL)
	}
}
