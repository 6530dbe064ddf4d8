package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()

	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}

	content := []byte("not really an image")

	key, err := s.Save(ctx, "originals", "a.png", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if key != filepath.Join("originals", "a.png") {
		t.Errorf("Save() key = %q", key)
	}

	reader, err := s.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("loaded bytes differ from saved bytes")
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, key); !os.IsNotExist(err) {
		t.Errorf("Load after delete error = %v, want not-exist", err)
	}
}

func TestDeleteMissingObjectFails(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}

	if err := s.Delete(context.Background(), "originals/missing.png"); err == nil {
		t.Error("Delete(missing) should return error")
	}
}
