package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := New(filepath.Join(tmpDir, "cache"), 24, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !c.Enabled() {
		t.Error("cache should be enabled")
	}

	c, err = New("", 0, false)
	if err != nil {
		t.Fatalf("New() error for disabled cache: %v", err)
	}
	if c.Enabled() {
		t.Error("cache should be disabled")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "nested", "cache", "dir")

	if _, err := New(cacheDir, 24, true); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Error("New() should create cache directory")
	}
}

func TestPutAndGet(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "cache"), 24, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	key := Key("model", "system", "user")
	response := "[ISSUE 1]\nrows: 1\nerror: стоп\ncriticality: high\nsolution: fix"

	if err := c.Put(key, response); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Get() returned false for existing key")
	}
	if got != response {
		t.Errorf("Get() = %q, want %q", got, response)
	}
}

func TestGetNonExistent(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "cache"), 24, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, ok := c.Get("nonexistent-key"); ok {
		t.Error("Get() should return false for non-existent key")
	}
}

func TestKey(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("Key() must separate parts")
	}
	if Key("a", "b") != Key("a", "b") {
		t.Error("Key() must be deterministic")
	}
	if Key() == "" {
		t.Error("Key() of nothing should still be a digest")
	}
}

func TestClear(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	c, err := New(cacheDir, 24, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := c.Put(string(rune('a'+i)), "data"); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Error("Clear() should remove cache directory")
	}
}

func TestDisabledCache(t *testing.T) {
	c, err := New("", 0, false)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := c.Put("key", "data"); err != nil {
		t.Errorf("Put() on disabled cache should not error: %v", err)
	}
	if _, ok := c.Get("key"); ok {
		t.Error("Get() on disabled cache should return false")
	}
	if err := c.Clear(); err != nil {
		t.Errorf("Clear() on disabled cache should not error: %v", err)
	}

	var nilCache *Cache
	if nilCache.Enabled() {
		t.Error("nil cache should report disabled")
	}
}

func TestHashBytes(t *testing.T) {
	hash1 := HashBytes([]byte("hello world"))
	hash2 := HashBytes([]byte("hello world"))
	hash3 := HashBytes([]byte("different"))

	if hash1 == "" {
		t.Error("HashBytes() returned empty hash")
	}
	if hash1 != hash2 {
		t.Error("HashBytes() should return consistent hashes for same content")
	}
	if hash1 == hash3 {
		t.Error("HashBytes() should return different hashes for different content")
	}
}

func TestGetStats(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "cache"), 24, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Empty cache should have 0 entries, got %d", stats.Entries)
	}

	for i := 0; i < 3; i++ {
		if err := c.Put(string(rune('a'+i)), "data"); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}

	stats, err = c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Entries != 3 {
		t.Errorf("Cache should have 3 entries, got %d", stats.Entries)
	}
	if stats.TotalSize <= 0 {
		t.Error("TotalSize should be positive")
	}
}

func TestTTLExpiration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := &Cache{dir: dir, ttl: time.Hour, enabled: true}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := c.Put("key", "data"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if _, ok := c.Get("key"); !ok {
		t.Fatal("Get() should return data before TTL expires")
	}

	c.ttl = time.Nanosecond
	time.Sleep(time.Millisecond)
	if _, ok := c.Get("key"); ok {
		t.Error("Get() should return false after TTL expires")
	}
}

func TestConcurrentPut(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "cache"), 0, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Put("shared", "value")
		}()
	}
	wg.Wait()

	got, ok := c.Get("shared")
	if !ok || got != "value" {
		t.Errorf("Get() = %q, %v after concurrent writes", got, ok)
	}
}
