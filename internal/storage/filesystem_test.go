package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteReadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	key, err := store.Write(context.Background(), "uploads/abc/photo.jpg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if key != "uploads/abc/photo.jpg" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	for _, key := range []string{"../escape.jpg", "a/../../escape.jpg", "", "   "} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) accepted an unsafe key", key)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.jpg")); err == nil {
		t.Fatal("traversal escaped the storage root")
	}
}

func TestFileStoreRemoveIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	key, err := store.Write(context.Background(), "uploads/gone.jpg", []byte("x"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := store.Remove(context.Background(), key); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if err := store.Remove(context.Background(), key); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}
	if _, err := store.Read(context.Background(), key); err == nil {
		t.Fatal("Read succeeded after Remove")
	}
}
