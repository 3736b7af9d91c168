// Package previewcache remembers the most recent merge preview per draft so
// a later resolution can be checked against the blocks the user saw.
package previewcache

import (
	"context"
	"time"

	"folio/engine/internal/merge"
)

type Entry struct {
	DocumentID       string        `json:"documentId"`
	DraftVersion     int64         `json:"draftVersion"`
	BaseVersion      int64         `json:"baseVersion"`
	PublishedVersion int64         `json:"publishedVersion"`
	Preview          merge.Preview `json:"preview"`
	CreatedAt        time.Time     `json:"createdAt"`
}

type Cache interface {
	Save(ctx context.Context, entry Entry) error
	// Load reports false when no live entry exists.
	Load(ctx context.Context, documentID string, draftVersion int64) (Entry, bool, error)
	Delete(ctx context.Context, documentID string, draftVersion int64) error
}

const DefaultTTL = 30 * time.Minute
