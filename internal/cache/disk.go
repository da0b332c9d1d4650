package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// manifestFile holds the gob-encoded index inside the store directory.
const manifestFile = "manifest.gob"

// DiskCache is the persistent local tier. Payloads live as individual
// zstd-compressed files under a named store directory; a gob manifest
// carries the index and the store version. A version bump invalidates
// every prior entry in one shot, which is the only supported
// invalidation strategy besides explicit removal.
type DiskCache struct {
	dir      string
	version  int
	capacity int64 // Maximum size in bytes
	size     int64 // Current size on disk in bytes

	// Compression
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// Index for fast lookups
	index map[string]*diskEntry

	// Synchronization
	mu sync.Mutex

	// Metrics
	stats Stats
}

// diskEntry is the manifest record for one stored payload. Fields are
// exported for gob.
type diskEntry struct {
	Key          string
	Size         int64 // Size on disk (compressed)
	OriginalSize int64
	Timestamp    time.Time
	LastAccess   time.Time
	Compressed   bool
}

// diskManifest is the persisted index.
type diskManifest struct {
	Version int
	Entries map[string]*diskEntry
}

// NewDiskCache opens (or creates) the store at dir/name. A manifest
// whose version differs from version is discarded along with every
// payload it indexed. compressionLevel 0 disables compression.
func NewDiskCache(dir, name string, version int, capacity int64, compressionLevel int) (*DiskCache, error) {
	storeDir := filepath.Join(dir, name)
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      storeDir,
		version:  version,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats: Stats{
			MaxBytes: capacity,
		},
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		dc.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := dc.loadManifest(); err != nil {
		// Unreadable or stale manifest: start over.
		dc.wipe()
	}
	dc.recalculate()

	return dc, nil
}

// Get retrieves a payload from disk.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(dc.payloadPath(key))
	if err != nil {
		dc.dropEntry(key, entry)
		dc.stats.Misses++
		return nil, false
	}

	if entry.Compressed {
		if dc.decoder == nil {
			dc.dropEntry(key, entry)
			dc.stats.Misses++
			return nil, false
		}
		decompressed, err := dc.decoder.DecodeAll(data, nil)
		if err != nil {
			dc.dropEntry(key, entry)
			dc.stats.Misses++
			return nil, false
		}
		data = decompressed
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	dc.stats.LastAccess = entry.LastAccess

	return data, true
}

// Put stores a payload, compressing when that actually shrinks it.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	originalSize := int64(len(value))

	toWrite := value
	compressed := false
	if dc.encoder != nil && originalSize > 1024 {
		packed := dc.encoder.EncodeAll(value, nil)
		if len(packed) < len(value) {
			toWrite = packed
			compressed = true
		}
	}

	diskSize := int64(len(toWrite))
	if dc.capacity > 0 && diskSize > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.size -= existing.Size
	}

	for dc.capacity > 0 && dc.size+diskSize > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	if err := writeAtomic(dc.payloadPath(key), toWrite); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		Key:          key,
		Size:         diskSize,
		OriginalSize: originalSize,
		Timestamp:    now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	dc.size += diskSize
	dc.stats.Bytes = dc.size

	return dc.saveManifest()
}

// Delete removes an entry and its payload file.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		return nil
	}
	dc.dropEntry(key, entry)
	return dc.saveManifest()
}

// Clear removes every entry and payload file.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.wipe()
	return dc.saveManifest()
}

// Size returns the current size on disk in bytes.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return dc.size
}

// Contains checks for a key without touching recency.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Stats returns a snapshot of the tier's counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Bytes = dc.size
	stats.Entries = len(dc.index)
	return stats
}

// RemoveOlderThan removes entries written before cutoff and reports how
// many were removed.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, entry := range dc.index {
		if entry.Timestamp.Before(cutoff) {
			dc.dropEntry(key, entry)
			removed++
		}
	}
	if removed > 0 {
		_ = dc.saveManifest()
	}
	return removed
}

// EvictLRU evicts cold entries until the tier is at 90% capacity,
// returning the number evicted.
func (dc *DiskCache) EvictLRU() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.capacity <= 0 {
		return 0
	}

	target := dc.capacity * 90 / 100
	evicted := 0
	for dc.size > target && len(dc.index) > 0 {
		dc.evictOldest()
		evicted++
	}
	if evicted > 0 {
		_ = dc.saveManifest()
	}
	return evicted
}

// ColdEntries returns up to n keys ordered coldest first.
func (dc *DiskCache) ColdEntries(n int) []string {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entries := make([]*diskEntry, 0, len(dc.index))
	for _, entry := range dc.index {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	if n > len(entries) {
		n = len(entries)
	}
	keys := make([]string, 0, n)
	for _, entry := range entries[:n] {
		keys = append(keys, entry.Key)
	}
	return keys
}

// Close persists the manifest.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return dc.saveManifest()
}

// Private helper methods

func (dc *DiskCache) payloadPath(key string) string {
	return filepath.Join(dc.dir, key+".bin")
}

// dropEntry removes an entry and its file (must be called with lock
// held).
func (dc *DiskCache) dropEntry(key string, entry *diskEntry) {
	os.Remove(dc.payloadPath(key))
	dc.size -= entry.Size
	delete(dc.index, key)
	dc.stats.Bytes = dc.size
}

// evictOldest removes the least recently used entry (must be called
// with lock held).
func (dc *DiskCache) evictOldest() {
	var oldestKey string
	var oldest *diskEntry

	for key, entry := range dc.index {
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldestKey = key
			oldest = entry
		}
	}
	if oldest == nil {
		return
	}

	dc.dropEntry(oldestKey, oldest)
	dc.stats.Evictions++
	dc.stats.LastEvict = time.Now()
}

// wipe deletes every payload file and resets the index (must be called
// with lock held).
func (dc *DiskCache) wipe() {
	for key := range dc.index {
		os.Remove(dc.payloadPath(key))
	}
	// Payloads orphaned by a lost manifest are unreachable anyway.
	if orphans, err := filepath.Glob(filepath.Join(dc.dir, "*.bin")); err == nil {
		for _, orphan := range orphans {
			os.Remove(orphan)
		}
	}
	dc.index = make(map[string]*diskEntry)
	dc.size = 0
	dc.stats.Bytes = 0
}

func (dc *DiskCache) loadManifest() error {
	file, err := os.Open(filepath.Join(dc.dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var manifest diskManifest
	if err := gob.NewDecoder(file).Decode(&manifest); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if manifest.Version != dc.version {
		return fmt.Errorf("manifest version %d, store version %d", manifest.Version, dc.version)
	}

	dc.index = manifest.Entries
	if dc.index == nil {
		dc.index = make(map[string]*diskEntry)
	}
	return nil
}

func (dc *DiskCache) saveManifest() error {
	manifest := diskManifest{
		Version: dc.version,
		Entries: dc.index,
	}

	path := filepath.Join(dc.dir, manifestFile)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(&manifest)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}

func (dc *DiskCache) recalculate() {
	dc.size = 0
	for _, entry := range dc.index {
		dc.size += entry.Size
	}
	dc.stats.Bytes = dc.size
	dc.stats.Entries = len(dc.index)
}

// writeAtomic writes data via a temp file and rename so readers never
// observe a partial payload.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}
