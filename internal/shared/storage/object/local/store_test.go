package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"medocs-backend/internal/shared/storage/object"
)

func TestStoreSaveOpenDelete(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	key, size, mimeType, err := store.Save(ctx, "user-1", "notes.txt", strings.NewReader("take with food"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != int64(len("take with food")) {
		t.Fatalf("unexpected size %d", size)
	}
	if !strings.HasPrefix(mimeType, "text/plain") {
		t.Fatalf("unexpected mime type %q", mimeType)
	}
	if !strings.HasSuffix(key, "_notes.txt") {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "take with food" {
		t.Fatalf("unexpected content %q", data)
	}

	info, err := store.Stat(ctx, key)
	if err != nil || info.Size != size || !strings.HasPrefix(info.ContentType, "text/plain") {
		t.Fatalf("Stat: %+v %v", info, err)
	}

	if _, err := store.SaveWithKey(ctx, key+object.ExtractedSuffix, "text/plain", strings.NewReader("derived")); err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Open(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Stat(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Stat, got %v", err)
	}
	if _, err := store.Open(ctx, key+object.ExtractedSuffix); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected derived copy removed, got %v", err)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Open(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
	if _, _, _, err := store.Save(context.Background(), "user-1", "../x", strings.NewReader("x")); err == nil {
		t.Fatal("expected traversal file name to be rejected")
	}
}
