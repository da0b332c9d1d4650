package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDiskCache(t *testing.T, dir string, version int, capacity int64) *DiskCache {
	t.Helper()
	dc, err := NewDiskCache(dir, "audio", version, capacity, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	return dc
}

// compressible returns n bytes that zstd can actually shrink.
func compressible(n int) []byte {
	return bytes.Repeat([]byte("shravan-audio-frame "), n/20+1)[:n]
}

func TestDiskCache_BasicOperations(t *testing.T) {
	dc := newTestDiskCache(t, t.TempDir(), 1, 1024*1024)

	key := "test-key"
	value := compressible(4096)

	if err := dc.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := dc.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if !bytes.Equal(got, value) {
		t.Error("Retrieved value does not match original")
	}

	if !dc.Contains(key) {
		t.Error("Contains returned false for existing key")
	}

	// Compression must actually shrink what lands on disk
	if dc.Size() >= int64(len(value)) {
		t.Errorf("disk size %d not smaller than payload %d", dc.Size(), len(value))
	}

	if err := dc.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if dc.Contains(key) {
		t.Error("Key still exists after delete")
	}
}

func TestDiskCache_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	dc := newTestDiskCache(t, dir, 1, 1024*1024)
	value := compressible(2048)
	if err := dc.Put("persist-key", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := newTestDiskCache(t, dir, 1, 1024*1024)
	got, ok := reopened.Get("persist-key")
	if !ok {
		t.Fatal("entry lost across reopen")
	}
	if !bytes.Equal(got, value) {
		t.Error("entry corrupted across reopen")
	}
}

func TestDiskCache_VersionBumpInvalidates(t *testing.T) {
	dir := t.TempDir()

	dc := newTestDiskCache(t, dir, 1, 1024*1024)
	dc.Put("old-key", compressible(2048))
	dc.Close()

	bumped := newTestDiskCache(t, dir, 2, 1024*1024)
	if _, ok := bumped.Get("old-key"); ok {
		t.Fatal("entry survived a version bump")
	}
	if bumped.Size() != 0 {
		t.Errorf("Size = %d after version bump, want 0", bumped.Size())
	}

	// Stale payload files are swept too
	files, _ := filepath.Glob(filepath.Join(dir, "audio", "*.bin"))
	if len(files) != 0 {
		t.Errorf("%d stale payload files left after version bump", len(files))
	}
}

func TestDiskCache_CorruptPayloadBecomesMiss(t *testing.T) {
	dir := t.TempDir()
	dc := newTestDiskCache(t, dir, 1, 1024*1024)

	dc.Put("corrupt-key", compressible(4096))

	// Scribble over the stored file
	path := dc.payloadPath("corrupt-key")
	if err := os.WriteFile(path, []byte("not zstd data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, ok := dc.Get("corrupt-key"); ok {
		t.Fatal("Get returned corrupted data")
	}
	if dc.Contains("corrupt-key") {
		t.Error("corrupted entry still indexed")
	}
}

func TestDiskCache_MissingFileBecomesMiss(t *testing.T) {
	dc := newTestDiskCache(t, t.TempDir(), 1, 1024*1024)

	dc.Put("vanishing-key", compressible(2048))
	os.Remove(dc.payloadPath("vanishing-key"))

	if _, ok := dc.Get("vanishing-key"); ok {
		t.Fatal("Get hit for a deleted payload file")
	}
	if dc.Contains("vanishing-key") {
		t.Error("entry with missing file still indexed")
	}
}

func TestDiskCache_ItemTooLarge(t *testing.T) {
	dc := newTestDiskCache(t, t.TempDir(), 1, 100)

	// Incompressible payload cannot fit the 100-byte cap
	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i * 7)
	}
	if err := dc.Put("big-key", big); err != ErrItemTooLarge {
		t.Errorf("Expected ErrItemTooLarge, got %v", err)
	}
}

func TestDiskCache_EvictLRU(t *testing.T) {
	dc := newTestDiskCache(t, t.TempDir(), 1, 1024*1024)

	for i := 0; i < 10; i++ {
		// Payloads below the compression threshold land verbatim
		if err := dc.Put(fmt.Sprintf("key-%d", i), make([]byte, 512)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	dc.capacity = 2048
	evicted := dc.EvictLRU()
	if evicted == 0 {
		t.Fatal("EvictLRU evicted nothing")
	}
	if dc.Size() > 2048*90/100 {
		t.Errorf("Size = %d after EvictLRU, want <= %d", dc.Size(), 2048*90/100)
	}
}

func TestDiskCache_PutEvictsWhenFull(t *testing.T) {
	dc := newTestDiskCache(t, t.TempDir(), 1, 2048)

	for i := 0; i < 10; i++ {
		if err := dc.Put(fmt.Sprintf("key-%d", i), make([]byte, 512)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if dc.Size() > 2048 {
			t.Fatalf("Size = %d exceeds capacity after insert %d", dc.Size(), i)
		}
	}

	if dc.Contains("key-0") {
		t.Error("oldest entry survived a full cache")
	}
	if !dc.Contains("key-9") {
		t.Error("newest entry missing")
	}
}

func TestDiskCache_RemoveOlderThan(t *testing.T) {
	dc := newTestDiskCache(t, t.TempDir(), 1, 1024*1024)

	dc.Put("old-key", []byte("old"))
	dc.index["old-key"].Timestamp = time.Now().Add(-48 * time.Hour)
	dc.Put("new-key", []byte("new"))

	removed := dc.RemoveOlderThan(time.Now().Add(-24 * time.Hour))
	if removed != 1 {
		t.Errorf("RemoveOlderThan removed %d, want 1", removed)
	}
	if dc.Contains("old-key") {
		t.Error("old entry survived")
	}
	if !dc.Contains("new-key") {
		t.Error("fresh entry removed")
	}
}

func TestDiskCache_NoPartialFiles(t *testing.T) {
	dir := t.TempDir()
	dc := newTestDiskCache(t, dir, 1, 1024*1024)

	for i := 0; i < 5; i++ {
		dc.Put(fmt.Sprintf("key-%d", i), compressible(2048))
	}
	dc.Close()

	leftovers, _ := filepath.Glob(filepath.Join(dir, "audio", "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("%d temp files left behind", len(leftovers))
	}
}

func TestDiskCache_ColdEntries(t *testing.T) {
	dc := newTestDiskCache(t, t.TempDir(), 1, 1024*1024)

	dc.Put("a", []byte("1"))
	dc.Put("b", []byte("2"))
	dc.Put("c", []byte("3"))
	dc.index["a"].LastAccess = time.Now().Add(-3 * time.Hour)
	dc.index["b"].LastAccess = time.Now().Add(-2 * time.Hour)
	dc.index["c"].LastAccess = time.Now().Add(-1 * time.Hour)

	cold := dc.ColdEntries(2)
	if len(cold) != 2 || cold[0] != "a" || cold[1] != "b" {
		t.Errorf("ColdEntries = %v, want [a b]", cold)
	}
}
