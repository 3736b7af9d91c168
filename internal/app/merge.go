package app

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"folio/engine/internal/domain"
	"folio/engine/internal/merge"
	"folio/engine/internal/previewcache"
	"folio/engine/internal/store"
	"folio/engine/internal/versions"
)

type PreviewResult struct {
	DocumentID       string           `json:"documentId"`
	DraftVersion     int64            `json:"draftVersion"`
	BaseVersion      int64            `json:"baseVersion"`
	PublishedVersion int64            `json:"publishedVersion"`
	Preview          merge.Preview    `json:"preview"`
	Fields           merge.FieldMerge `json:"fields"`
}

type ResolveInput struct {
	DocumentID string `json:"documentId"`
	// DraftVersion zero selects the open draft.
	DraftVersion int64  `json:"draftVersion"`
	Actor        string `json:"actor"`
	Message      string `json:"message"`
	merge.Request
	Fields []merge.FieldResolution `json:"fieldResolutions"`
}

func (in ResolveInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DocumentID, validation.Required),
		validation.Field(&in.DraftVersion, validation.Min(int64(0))),
		validation.Field(&in.Actor, validation.Required),
	)
}

type ResolveResult struct {
	// Revision is the merge commit. It is live when Approved is set and the
	// document's new open draft otherwise.
	Revision store.Revision `json:"revision"`
	Draft    store.Revision `json:"draft"`
	Approved bool           `json:"approved"`
}

type mergeInputSet struct {
	base      store.Content
	published store.Revision
}

// PreviewMerge computes the block-by-block merge of an open draft against
// the published version and remembers it for ResolveMerge.
func (s *Service) PreviewMerge(ctx context.Context, documentID string, draftVersion int64) (PreviewResult, error) {
	var (
		head  store.Head
		draft store.Revision
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		head, err = s.store.Head(gctx, documentID)
		return err
	})
	g.Go(func() error {
		var err error
		draft, err = openDraftOf(gctx, s.store, documentID, draftVersion)
		return err
	})
	if err := g.Wait(); err != nil {
		return PreviewResult{}, err
	}
	if !draft.Status.Open() {
		return PreviewResult{}, invalidTransition("preview", draft)
	}

	inputs, err := s.loadMergeInputs(ctx, documentID, draft, head)
	if err != nil {
		return PreviewResult{}, err
	}
	preview, err := s.previewBounded(ctx, inputs.base.Body, inputs.published.Content.Body, draft.Content.Body)
	if err != nil {
		return PreviewResult{}, err
	}

	entry := previewcache.Entry{
		DocumentID:       documentID,
		DraftVersion:     draft.VersionNumber,
		BaseVersion:      draft.BaseVersionNumber,
		PublishedVersion: head.PublishedVersionNumber,
		Preview:          preview,
		CreatedAt:        s.versions.Now(),
	}
	if err := s.previews.Save(ctx, entry); err != nil {
		return PreviewResult{}, domain.Internal(err, "save merge preview")
	}

	return PreviewResult{
		DocumentID:       documentID,
		DraftVersion:     draft.VersionNumber,
		BaseVersion:      draft.BaseVersionNumber,
		PublishedVersion: head.PublishedVersionNumber,
		Preview:          preview,
		Fields:           merge.MergeFields(inputs.base.Fields(), inputs.published.Content.Fields(), draft.Content.Fields()),
	}, nil
}

// ResolveMerge turns an open draft plus the caller's decisions into a merge
// commit on top of the published version. Block resolutions refer to the
// most recent preview, which must still match the published version.
func (s *Service) ResolveMerge(ctx context.Context, in ResolveInput) (ResolveResult, error) {
	if err := in.Validate(); err != nil {
		return ResolveResult{}, domain.Validation("INVALID_RESOLVE_INPUT", "resolve input is invalid", err)
	}

	var (
		result    ResolveResult
		cachedFor int64
	)
	err := s.store.Update(ctx, in.DocumentID, func(tx store.Tx) error {
		draft, err := targetRevision(ctx, tx, in.DraftVersion)
		if err != nil {
			return err
		}
		if !draft.Status.Open() {
			return invalidTransition("resolve", draft)
		}
		head, err := tx.Head(ctx)
		if err != nil {
			return err
		}
		if draft.BaseVersionNumber == head.PublishedVersionNumber {
			return domain.Validation(
				"MERGE_NOT_REQUIRED",
				fmt.Sprintf("v%d is based on the published version and needs no merge", draft.VersionNumber),
				map[string]any{"documentId": in.DocumentID, "draftVersion": draft.VersionNumber},
			)
		}
		base, published, err := mergeInputs(ctx, tx, draft, head)
		if err != nil {
			return err
		}

		preview, err := s.previewFor(ctx, in, draft, head, base.Body, published.Content.Body)
		if err != nil {
			return err
		}
		cachedFor = draft.VersionNumber

		text, err := merge.Resolve(preview, in.Request)
		if err != nil {
			return err
		}
		fields := merge.MergeFields(base.Fields(), published.Content.Fields(), draft.Content.Fields())
		values, err := merge.ResolveFields(fields, in.Fields, in.ForceOverwrite)
		if err != nil {
			return err
		}
		content := draft.Content.WithFields(values)
		content.Body = text

		approve := draft.Status == store.StatusPending
		revision, err := s.commitMerge(ctx, tx, draft, head, content, in.Actor, in.Message, approve)
		if err != nil {
			return err
		}
		if approve {
			draft.Status = store.StatusApproved
		} else {
			draft.Status = store.StatusRejected
		}
		result = ResolveResult{Revision: revision, Draft: draft, Approved: approve}
		return nil
	})
	s.metrics.AddTransition("resolve", Outcome(err))
	if err != nil {
		return ResolveResult{}, err
	}

	if err := s.previews.Delete(ctx, in.DocumentID, cachedFor); err != nil {
		s.logger.Warnw("drop merge preview failed", "document_id", in.DocumentID, "version", cachedFor, "error", err)
	}
	s.metrics.AddRevisionCreated(string(result.Revision.Status))
	s.logger.Infow("merge resolved",
		"document_id", in.DocumentID,
		"draft_version", result.Draft.VersionNumber,
		"merge_version", result.Revision.VersionNumber,
		"approved", result.Approved,
		"actor", in.Actor,
	)
	s.record(result.Revision)
	if result.Approved {
		s.publishMirror(result.Revision, in.Actor)
	}
	return result, nil
}

// previewFor returns the preview block resolutions are checked against. A
// request without block resolutions gets a freshly computed one.
func (s *Service) previewFor(ctx context.Context, in ResolveInput, draft store.Revision, head store.Head, base, current string) (merge.Preview, error) {
	if len(in.Resolutions) == 0 {
		return s.previewBounded(ctx, base, current, draft.Content.Body)
	}
	entry, ok, err := s.previews.Load(ctx, in.DocumentID, draft.VersionNumber)
	if err != nil {
		return merge.Preview{}, domain.Internal(err, "load merge preview")
	}
	if !ok {
		return merge.Preview{}, domain.Validation(
			"PREVIEW_REQUIRED",
			fmt.Sprintf("no merge preview for v%d; preview the merge before resolving blocks", draft.VersionNumber),
			map[string]any{"documentId": in.DocumentID, "draftVersion": draft.VersionNumber},
		)
	}
	if entry.PublishedVersion != head.PublishedVersionNumber {
		return merge.Preview{}, domain.Conflict(
			"STALE_PREVIEW",
			fmt.Sprintf("preview was computed against v%d but v%d is published", entry.PublishedVersion, head.PublishedVersionNumber),
			map[string]any{
				"documentId":       in.DocumentID,
				"draftVersion":     draft.VersionNumber,
				"previewPublished": entry.PublishedVersion,
				"publishedVersion": head.PublishedVersionNumber,
			},
		)
	}
	return entry.Preview, nil
}

// mergeInputs loads the draft's base content and the published revision
// inside a document update. Version zero reads as empty content; a base
// that was never approved is refused.
func mergeInputs(ctx context.Context, tx store.Tx, draft store.Revision, head store.Head) (store.Content, store.Revision, error) {
	var (
		base      store.Content
		published store.Revision
	)
	if draft.BaseVersionNumber > 0 {
		revision, err := tx.Revision(ctx, draft.BaseVersionNumber)
		if err != nil {
			return store.Content{}, store.Revision{}, err
		}
		if err := versions.CheckBase(revision); err != nil {
			return store.Content{}, store.Revision{}, err
		}
		base = revision.Content
	}
	if head.PublishedVersionNumber > 0 {
		revision, err := tx.Revision(ctx, head.PublishedVersionNumber)
		if err != nil {
			return store.Content{}, store.Revision{}, err
		}
		published = revision
	}
	return base, published, nil
}

func (s *Service) loadMergeInputs(ctx context.Context, documentID string, draft store.Revision, head store.Head) (mergeInputSet, error) {
	var inputs mergeInputSet
	g, gctx := errgroup.WithContext(ctx)
	if draft.BaseVersionNumber > 0 {
		g.Go(func() error {
			revision, err := s.store.Revision(gctx, documentID, draft.BaseVersionNumber)
			if err != nil {
				return err
			}
			if err := versions.CheckBase(revision); err != nil {
				return err
			}
			inputs.base = revision.Content
			return nil
		})
	}
	if head.PublishedVersionNumber > 0 {
		g.Go(func() error {
			revision, err := s.store.Revision(gctx, documentID, head.PublishedVersionNumber)
			if err != nil {
				return err
			}
			inputs.published = revision
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return mergeInputSet{}, err
	}
	return inputs, nil
}
