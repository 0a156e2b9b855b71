package mirror

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrInitCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mirrors")
	store := New(dir)
	defer store.Close()

	text, err := store.LoadOrInit("room-1", "fallback content")
	if err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}
	if text != "fallback content" {
		t.Errorf("Expected fallback content, got %q", text)
	}

	data, err := os.ReadFile(filepath.Join(dir, "room-1.txt"))
	if err != nil {
		t.Fatalf("Mirror file should exist: %v", err)
	}
	if string(data) != "fallback content" {
		t.Errorf("Mirror file content mismatch: %q", data)
	}
}

func TestLoadOrInitDiskWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "room-1.txt"), []byte("from disk"), 0644); err != nil {
		t.Fatalf("Failed to seed mirror file: %v", err)
	}

	store := New(dir)
	defer store.Close()

	text, err := store.LoadOrInit("room-1", "in-memory default")
	if err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}
	if text != "from disk" {
		t.Errorf("Disk content should override fallback, got %q", text)
	}
}

func TestLoadOrInitEmptyFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "room-1.txt"), nil, 0644); err != nil {
		t.Fatalf("Failed to seed empty file: %v", err)
	}

	store := New(dir)
	defer store.Close()

	text, err := store.LoadOrInit("room-1", "default")
	if err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}
	if text != "default" {
		t.Errorf("Empty mirror file should fall back, got %q", text)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store := New(dir)
	store.Persist("room-1", "v1")
	store.Persist("room-1", "v2")
	store.Close() // drain the queue

	// A fresh process recovers the last write
	reopened := New(dir)
	defer reopened.Close()

	text, err := reopened.LoadOrInit("room-1", "should not be used")
	if err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}
	if text != "v2" {
		t.Errorf("Expected last persisted text, got %q", text)
	}
}

func TestDispose(t *testing.T) {
	dir := t.TempDir()

	store := New(dir)
	store.Persist("room-1", "content")
	store.Dispose("room-1")
	store.Close()

	if _, err := os.Stat(filepath.Join(dir, "room-1.txt")); !os.IsNotExist(err) {
		t.Error("Mirror file should be gone after Dispose")
	}
}

func TestDisposeMissingFile(t *testing.T) {
	store := New(t.TempDir())
	store.Dispose("never-existed")
	store.Close() // must not log a failure or panic
}

func TestPersistOrderPerRoom(t *testing.T) {
	dir := t.TempDir()

	store := New(dir)
	for i := 0; i < 50; i++ {
		store.Persist("room-1", "stale")
	}
	store.Persist("room-1", "final")
	store.Close()

	data, err := os.ReadFile(filepath.Join(dir, "room-1.txt"))
	if err != nil {
		t.Fatalf("Mirror file missing: %v", err)
	}
	if string(data) != "final" {
		t.Errorf("Writes applied out of order, got %q", data)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc123", "abc123"},
		{"room-1_b.c", "room-1_b.c"},
		{"../escape", ".._escape"},
		{"a/b\\c", "a_b_c"},
		{"", "_"},
	}

	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
