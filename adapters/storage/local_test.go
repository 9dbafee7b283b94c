package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/storage"
)

func TestLocal_Deliver(t *testing.T) {
	dir := t.TempDir()
	l, err := storage.NewLocal(filepath.Join(dir, "out"), 0)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	if err := l.Deliver(context.Background(), "simpleverse_resized_cat.png", []byte("pixels")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "out", "simpleverse_resized_cat.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, []byte("pixels")) {
		t.Errorf("content: got %q", got)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Join(dir, "out"))
	if len(entries) != 1 {
		t.Errorf("entries: got %d, want 1", len(entries))
	}
}

func TestLocal_DeliverSanitizesName(t *testing.T) {
	dir := t.TempDir()
	l, err := storage.NewLocal(dir, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deliver(context.Background(), "../../escape.png", []byte("x")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.png")); err != nil {
		t.Errorf("expected file inside root: %v", err)
	}
}

func TestLocal_DeliverCanceled(t *testing.T) {
	l, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Deliver(ctx, "a.png", []byte("x")); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestMemory(t *testing.T) {
	m := storage.NewMemory()
	_ = m.Deliver(context.Background(), "a", []byte("1"))
	_ = m.Deliver(context.Background(), "b", []byte("2"))
	all := m.All()
	if len(all) != 2 || all[0].Name != "a" || all[1].Name != "b" {
		t.Errorf("unexpected deliveries: %+v", all)
	}
}
