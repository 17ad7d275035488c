package localdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hearthfin/hearth/internal/core/domain"
)

func TestStoreReadAndList(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "drop.csv"), []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatalf("make subdir: %v", err)
	}

	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data, err := store.Read(context.Background(), "drop.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "a,b\n" {
		t.Fatalf("unexpected content %q", data)
	}

	names, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 1 || names[0] != "drop.csv" {
		t.Fatalf("expected only the file, got %v", names)
	}
}

func TestStoreReadMissingFile(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = store.Read(context.Background(), "gone.csv")
	if !domain.IsKind(err, domain.ErrPayloadUnavailable) {
		t.Fatalf("expected payload unavailable, got %v", err)
	}
}

func TestStoreReadFlattensPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "passwd"), []byte("safe"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data, err := store.Read(context.Background(), "../../etc/passwd")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "safe" {
		t.Fatalf("expected read confined to watch dir, got %q", data)
	}
}

func TestStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "watch")

	if _, err := New(dir); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory created: %v", err)
	}
}
