package previewcache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Save(ctx, sampleEntry()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entry, ok, err := cache.Load(ctx, "doc-1", 4)
	if err != nil || !ok {
		t.Fatalf("expected cached preview, ok=%v err=%v", ok, err)
	}
	if !entry.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", entry.CreatedAt, now)
	}
	if _, ok, _ := cache.Load(ctx, "doc-1", 5); ok {
		t.Error("other drafts must not share an entry")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := cache.Load(ctx, "doc-1", 4); ok {
		t.Fatal("expected entry to expire")
	}

	if err := cache.Save(ctx, sampleEntry()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := cache.Delete(ctx, "doc-1", 4); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := cache.Load(ctx, "doc-1", 4); ok {
		t.Fatal("expected entry to be deleted")
	}
}
