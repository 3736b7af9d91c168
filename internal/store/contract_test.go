package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/engine/internal/domain"
)

// runContract exercises behaviour every Store backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("insert and read back", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := uuid.NewString()

		err := s.Update(ctx, doc, func(tx Tx) error {
			head, err := tx.Head(ctx)
			require.NoError(t, err)
			assert.False(t, head.Exists())

			if err := tx.InsertRevision(ctx, sampleRevision(doc, 1, StatusApproved)); err != nil {
				return err
			}
			return tx.SaveHead(ctx, Head{LatestVersionNumber: 1, PublishedVersionNumber: 1})
		})
		require.NoError(t, err)

		head, err := s.Head(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, doc, head.DocumentID)
		assert.Equal(t, int64(1), head.LatestVersionNumber)
		assert.Equal(t, int64(1), head.PublishedVersionNumber)
		assert.False(t, head.HasDraft)

		got, err := s.Revision(ctx, doc, 1)
		require.NoError(t, err)
		assert.Equal(t, doc, got.DocumentID)
		assert.Equal(t, "line one\nline two", got.Content.Body)
		assert.Equal(t, StatusApproved, got.Status)
		assert.Nil(t, got.ParentRevisionID)
		assert.Nil(t, got.MergedFromVersionNumber)
	})

	t.Run("reads inside a transaction see its own writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := uuid.NewString()

		err := s.Update(ctx, doc, func(tx Tx) error {
			require.NoError(t, tx.InsertRevision(ctx, sampleRevision(doc, 1, StatusDraft)))
			got, err := tx.Revision(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, StatusDraft, got.Status)

			require.NoError(t, tx.SaveHead(ctx, Head{LatestVersionNumber: 1, HasDraft: true}))
			head, err := tx.Head(ctx)
			require.NoError(t, err)
			assert.True(t, head.HasDraft)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("failed update discards writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := uuid.NewString()
		boom := errors.New("boom")

		err := s.Update(ctx, doc, func(tx Tx) error {
			require.NoError(t, tx.InsertRevision(ctx, sampleRevision(doc, 1, StatusDraft)))
			require.NoError(t, tx.SaveHead(ctx, Head{LatestVersionNumber: 1, HasDraft: true}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Head(ctx, doc)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Revision(ctx, doc, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate version is a race", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := uuid.NewString()
		seed(t, s, doc, sampleRevision(doc, 1, StatusApproved))

		err := s.Update(ctx, doc, func(tx Tx) error {
			return tx.InsertRevision(ctx, sampleRevision(doc, 1, StatusDraft))
		})
		var domainErr *domain.Error
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.KindConflict, domainErr.Kind)
		assert.Equal(t, "VERSION_RACE", domainErr.Code)
	})

	t.Run("status change", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := uuid.NewString()
		seed(t, s, doc, sampleRevision(doc, 1, StatusPending))
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		err := s.Update(ctx, doc, func(tx Tx) error {
			return tx.UpdateStatus(ctx, 1, StatusChange{Status: StatusRejected, ReviewedBy: "rev", Comment: "no", ReviewedAt: at})
		})
		require.NoError(t, err)

		got, err := s.Revision(ctx, doc, 1)
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, got.Status)
		assert.Equal(t, "rev", got.ReviewedBy)
		assert.Equal(t, "no", got.ReviewComment)
		require.NotNil(t, got.ReviewedAt)
		assert.True(t, at.Equal(*got.ReviewedAt))
		assert.Equal(t, "line one\nline two", got.Content.Body)

		err = s.Update(ctx, doc, func(tx Tx) error {
			return tx.UpdateStatus(ctx, 9, StatusChange{Status: StatusRejected, ReviewedAt: at})
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("revisions are listed newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := uuid.NewString()
		seed(t, s, doc,
			sampleRevision(doc, 1, StatusApproved),
			sampleRevision(doc, 2, StatusApproved),
			sampleRevision(doc, 3, StatusDraft),
		)

		items, err := s.Revisions(ctx, doc)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, []int64{3, 2, 1}, []int64{items[0].VersionNumber, items[1].VersionNumber, items[2].VersionNumber})

		empty, err := s.Revisions(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("concurrent updates are serialized per document", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := uuid.NewString()
		const writers = 20

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Update(ctx, doc, func(tx Tx) error {
					head, err := tx.Head(ctx)
					if err != nil {
						return err
					}
					next := head.LatestVersionNumber + 1
					if err := tx.InsertRevision(ctx, sampleRevision(doc, next, StatusApproved)); err != nil {
						return err
					}
					head.LatestVersionNumber = next
					head.PublishedVersionNumber = next
					return tx.SaveHead(ctx, head)
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		items, err := s.Revisions(ctx, doc)
		require.NoError(t, err)
		require.Len(t, items, writers)
		for idx, item := range items {
			assert.Equal(t, int64(writers-idx), item.VersionNumber)
		}
		head, err := s.Head(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, int64(writers), head.LatestVersionNumber)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})
}

func sampleRevision(doc string, version int64, status Status) Revision {
	var parent *string
	if version > 1 {
		id := fmt.Sprintf("%s-%d", doc, version-1)
		parent = &id
	}
	return Revision{
		ID:            fmt.Sprintf("%s-%d", doc, version),
		DocumentID:    doc,
		VersionNumber: version,
		Content: Content{
			Title:    "Title",
			Body:     "line one\nline two",
			Summary:  "summary",
			Category: "policy",
			Keywords: "a,b",
		},
		CommitHash:        fmt.Sprintf("hash-%d", version),
		ParentRevisionID:  parent,
		BranchName:        BranchMain,
		AuthorID:          "author",
		CommitMessage:     "msg",
		CreatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:            status,
		BaseVersionNumber: version - 1,
	}
}

func seed(t *testing.T, s Store, doc string, revisions ...Revision) {
	t.Helper()
	ctx := context.Background()
	err := s.Update(ctx, doc, func(tx Tx) error {
		head, err := tx.Head(ctx)
		if err != nil {
			return err
		}
		for _, revision := range revisions {
			if err := tx.InsertRevision(ctx, revision); err != nil {
				return err
			}
			head.LatestVersionNumber = revision.VersionNumber
			if revision.Status == StatusApproved {
				head.PublishedVersionNumber = revision.VersionNumber
			}
			if revision.Status.Open() {
				head.HasDraft = true
			}
		}
		return tx.SaveHead(ctx, head)
	})
	require.NoError(t, err)
}
