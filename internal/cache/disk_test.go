package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskCache_SetGet(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)

	if err := c.Set("run-key", []byte("report"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, found := c.Get("run-key")
	if !found {
		t.Fatal("Expected cache hit")
	}
	if string(val) != "report" {
		t.Errorf("Expected 'report', got %s", string(val))
	}
}

func TestDiskCache_Get_Miss(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if _, found := c.Get("absent"); found {
		t.Error("Expected miss for unknown key")
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)

	if err := c.Set("fleeting", []byte("value"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("fleeting"); found {
		t.Error("Expected expired entry to miss")
	}
	// Expired read removes the file
	if _, found := c.Get("fleeting"); found {
		t.Error("Expected removed entry to stay missing")
	}
}

func TestDiskCache_Delete(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)

	if err := c.Set("gone", []byte("value"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Delete("gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := c.Get("gone"); found {
		t.Error("Expected miss after delete")
	}
}

func TestDiskCache_Clear(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(k, []byte(k), 0); err != nil {
			t.Fatalf("Set %s failed: %v", k, err)
		}
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, found := c.Get(k); found {
			t.Errorf("Expected %s cleared", k)
		}
	}
}

func TestDiskCache_Get_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := c.Set("key", []byte("value"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Expected 1 entry file, got %d (err %v)", len(entries), err)
	}
	path := filepath.Join(dir, entries[0].Name())
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("Corrupt write failed: %v", err)
	}

	if _, found := c.Get("key"); found {
		t.Error("Expected corrupt entry to miss")
	}
}

func TestDiskCache_Prune(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := c.Set("stale", []byte("old"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("fresh", []byte("new"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if err := c.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 surviving entry file, got %d", len(entries))
	}
	if _, found := c.Get("fresh"); !found {
		t.Error("Expected fresh entry to survive prune")
	}
	if _, found := c.Get("stale"); found {
		t.Error("Expected stale entry pruned")
	}
}

func TestDiskCache_Prune_MissingDir(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "never-created"), time.Hour)
	if err := c.Prune(); err != nil {
		t.Errorf("Expected nil for missing dir, got %v", err)
	}
}

func TestLayeredCache_SetGet(t *testing.T) {
	c := NewLayeredCache(8, t.TempDir(), time.Hour)

	if err := c.Set("key", []byte("value"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, found := c.Get("key")
	if !found {
		t.Fatal("Expected hit")
	}
	if string(val) != "value" {
		t.Errorf("Expected 'value', got %s", string(val))
	}
}

func TestLayeredCache_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	first := NewLayeredCache(8, dir, time.Hour)
	if err := first.Set("run", []byte("report"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh cache over the same directory starts with empty memory
	// and answers from disk.
	second := NewLayeredCache(8, dir, time.Hour)
	val, found := second.Get("run")
	if !found {
		t.Fatal("Expected disk hit after restart")
	}
	if string(val) != "report" {
		t.Errorf("Expected 'report', got %s", string(val))
	}
}

func TestLayeredCache_DiskHitPromotedToMemory(t *testing.T) {
	dir := t.TempDir()

	first := NewLayeredCache(8, dir, time.Hour)
	if err := first.Set("run", []byte("report"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := NewLayeredCache(8, dir, time.Hour)
	if _, found := second.Get("run"); !found {
		t.Fatal("Expected disk hit")
	}

	// Remove the disk entry; the promoted memory copy still answers.
	if err := NewDiskCache(dir, time.Hour).Delete("run"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	val, found := second.Get("run")
	if !found {
		t.Fatal("Expected memory hit after disk entry removed")
	}
	if string(val) != "report" {
		t.Errorf("Expected 'report', got %s", string(val))
	}
}

func TestLayeredCache_Delete(t *testing.T) {
	c := NewLayeredCache(8, t.TempDir(), time.Hour)

	if err := c.Set("key", []byte("value"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := c.Get("key"); found {
		t.Error("Expected miss after delete")
	}
}

func TestNewLayeredCache_PrunesOnStartup(t *testing.T) {
	dir := t.TempDir()

	d := NewDiskCache(dir, time.Hour)
	if err := d.Set("stale", []byte("old"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	NewLayeredCache(8, dir, time.Hour)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected stale entries swept at construction, got %d files", len(entries))
	}
}
