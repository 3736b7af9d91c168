package previewcache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache is the single-process fallback used when no Redis is
// configured.
type MemoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryItem
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]memoryItem),
	}
}

func memoryKey(documentID string, draftVersion int64) string {
	return fmt.Sprintf("%s:%d", documentID, draftVersion)
}

func (c *MemoryCache) Save(_ context.Context, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now.UTC()
	}
	c.items[memoryKey(entry.DocumentID, entry.DraftVersion)] = memoryItem{entry: entry, expiresAt: now.Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Load(_ context.Context, documentID string, draftVersion int64) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := memoryKey(documentID, draftVersion)
	item, ok := c.items[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, documentID string, draftVersion int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, memoryKey(documentID, draftVersion))
	return nil
}
