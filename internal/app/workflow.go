package app

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"folio/engine/internal/domain"
	"folio/engine/internal/merge"
	"folio/engine/internal/store"
	"folio/engine/internal/versions"
)

// TransitionInput drives submit, approve and reject. A zero VersionNumber
// selects the document's open draft.
type TransitionInput struct {
	DocumentID    string `json:"documentId"`
	VersionNumber int64  `json:"revisionNumber"`
	Actor         string `json:"actor"`
	Comment       string `json:"comment"`
}

func (in TransitionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DocumentID, validation.Required),
		validation.Field(&in.VersionNumber, validation.Min(int64(0))),
		validation.Field(&in.Actor, validation.Required),
	)
}

type MergeStatus struct {
	DocumentID         string `json:"documentId"`
	VersionNumber      int64  `json:"versionNumber"`
	NeedsMerge         bool   `json:"needsMerge"`
	CanAutoMerge       bool   `json:"canAutoMerge"`
	HasConflict        bool   `json:"hasConflict"`
	ConflictBlockCount int    `json:"conflictBlockCount"`
	BaseVersion        int64  `json:"baseVersion"`
	PublishedVersion   int64  `json:"publishedVersion"`
}

type ApproveResult struct {
	// Published is the revision now live: the draft itself, or the merge
	// commit built from it.
	Published store.Revision `json:"published"`
	Draft     store.Revision `json:"draft"`
	Merged    bool           `json:"merged"`
}

// Submit moves a DRAFT revision to PENDING. Submitting a revision that is
// already PENDING changes nothing.
func (s *Service) Submit(ctx context.Context, in TransitionInput) (MergeStatus, error) {
	if err := validateTransition(in); err != nil {
		return MergeStatus{}, err
	}

	var submitted store.Revision
	err := s.store.Update(ctx, in.DocumentID, func(tx store.Tx) error {
		revision, err := targetRevision(ctx, tx, in.VersionNumber)
		if err != nil {
			return err
		}
		switch revision.Status {
		case store.StatusPending:
			submitted = revision
			return nil
		case store.StatusDraft:
		default:
			return invalidTransition("submit", revision)
		}
		if err := tx.UpdateStatus(ctx, revision.VersionNumber, store.StatusChange{
			Status:     store.StatusPending,
			ReviewedBy: in.Actor,
			Comment:    in.Comment,
			ReviewedAt: s.versions.Now(),
		}); err != nil {
			return err
		}
		submitted = revision
		submitted.Status = store.StatusPending
		return nil
	})
	s.metrics.AddTransition("submit", Outcome(err))
	if err != nil {
		return MergeStatus{}, err
	}

	s.logger.Infow("revision submitted",
		"document_id", in.DocumentID,
		"version", submitted.VersionNumber,
		"actor", in.Actor,
	)
	return s.MergeStatus(ctx, in.DocumentID, submitted.VersionNumber)
}

// Approve publishes a PENDING revision. When the document was published
// again after the draft's base, the draft is merged against the published
// version first and the merge commit is what goes live. A conflicting merge
// fails with MERGE_REQUIRED and leaves everything untouched.
func (s *Service) Approve(ctx context.Context, in TransitionInput) (ApproveResult, error) {
	if err := validateTransition(in); err != nil {
		return ApproveResult{}, err
	}

	var result ApproveResult
	err := s.store.Update(ctx, in.DocumentID, func(tx store.Tx) error {
		draft, err := targetRevision(ctx, tx, in.VersionNumber)
		if err != nil {
			return err
		}
		if draft.Status != store.StatusPending {
			return invalidTransition("approve", draft)
		}
		head, err := tx.Head(ctx)
		if err != nil {
			return err
		}
		now := s.versions.Now()

		if draft.BaseVersionNumber == head.PublishedVersionNumber {
			if err := tx.UpdateStatus(ctx, draft.VersionNumber, store.StatusChange{
				Status:     store.StatusApproved,
				ReviewedBy: in.Actor,
				Comment:    in.Comment,
				ReviewedAt: now,
			}); err != nil {
				return err
			}
			head.PublishedVersionNumber = draft.VersionNumber
			if _, err := s.versions.RefreshHead(ctx, tx, head); err != nil {
				return err
			}
			draft.Status = store.StatusApproved
			result = ApproveResult{Published: draft, Draft: draft}
			return nil
		}

		base, published, err := mergeInputs(ctx, tx, draft, head)
		if err != nil {
			return err
		}
		preview, err := s.previewBounded(ctx, base.Body, published.Content.Body, draft.Content.Body)
		if err != nil {
			return err
		}
		fields := merge.MergeFields(base.Fields(), published.Content.Fields(), draft.Content.Fields())
		text, clean := preview.AutoMergedText()
		if !clean || len(fields.Conflicts) > 0 {
			return domain.Conflict(
				"MERGE_REQUIRED",
				fmt.Sprintf("v%d conflicts with published v%d and needs a manual merge", draft.VersionNumber, head.PublishedVersionNumber),
				map[string]any{
					"documentId":         in.DocumentID,
					"draftVersion":       draft.VersionNumber,
					"publishedVersion":   head.PublishedVersionNumber,
					"conflictBlockCount": preview.ConflictBlockCount,
					"fieldConflicts":     fields.Conflicts,
				},
			)
		}

		content := draft.Content.WithFields(fields.Values)
		content.Body = text
		mergeCommit, err := s.commitMerge(ctx, tx, draft, head, content, in.Actor, in.Comment, true)
		if err != nil {
			return err
		}
		draft.Status = store.StatusApproved
		result = ApproveResult{Published: mergeCommit, Draft: draft, Merged: true}
		return nil
	})
	s.metrics.AddTransition("approve", Outcome(err))
	if err != nil {
		return ApproveResult{}, err
	}

	s.logger.Infow("revision approved",
		"document_id", in.DocumentID,
		"version", result.Draft.VersionNumber,
		"published_version", result.Published.VersionNumber,
		"merged", result.Merged,
		"actor", in.Actor,
	)
	if result.Merged {
		s.metrics.AddRevisionCreated(string(result.Published.Status))
	}
	s.record(result.Published)
	s.publishMirror(result.Published, in.Actor)
	return result, nil
}

// Reject closes a PENDING revision. The document is left without a draft;
// the author starts over with a fresh revision.
func (s *Service) Reject(ctx context.Context, in TransitionInput) (store.Revision, error) {
	if err := validateTransition(in); err != nil {
		return store.Revision{}, err
	}

	var rejected store.Revision
	err := s.store.Update(ctx, in.DocumentID, func(tx store.Tx) error {
		revision, err := targetRevision(ctx, tx, in.VersionNumber)
		if err != nil {
			return err
		}
		if revision.Status != store.StatusPending {
			return invalidTransition("reject", revision)
		}
		now := s.versions.Now()
		if err := tx.UpdateStatus(ctx, revision.VersionNumber, store.StatusChange{
			Status:     store.StatusRejected,
			ReviewedBy: in.Actor,
			Comment:    in.Comment,
			ReviewedAt: now,
		}); err != nil {
			return err
		}
		head, err := tx.Head(ctx)
		if err != nil {
			return err
		}
		if _, err := s.versions.RefreshHead(ctx, tx, head); err != nil {
			return err
		}
		rejected = revision
		rejected.Status = store.StatusRejected
		rejected.ReviewedBy = in.Actor
		rejected.ReviewComment = in.Comment
		rejected.ReviewedAt = &now
		return nil
	})
	s.metrics.AddTransition("reject", Outcome(err))
	if err != nil {
		return store.Revision{}, err
	}

	s.logger.Infow("revision rejected",
		"document_id", in.DocumentID,
		"version", rejected.VersionNumber,
		"actor", in.Actor,
	)
	return rejected, nil
}

// MergeStatus reports whether approving versionNumber (zero for the open
// draft) would need a merge, and whether that merge would be clean.
func (s *Service) MergeStatus(ctx context.Context, documentID string, versionNumber int64) (MergeStatus, error) {
	head, err := s.store.Head(ctx, documentID)
	if err != nil {
		return MergeStatus{}, err
	}
	draft, err := openDraftOf(ctx, s.store, documentID, versionNumber)
	if err != nil {
		return MergeStatus{}, err
	}

	status := MergeStatus{
		DocumentID:       documentID,
		VersionNumber:    draft.VersionNumber,
		BaseVersion:      draft.BaseVersionNumber,
		PublishedVersion: head.PublishedVersionNumber,
		CanAutoMerge:     true,
	}
	if !draft.Status.Open() || draft.BaseVersionNumber == head.PublishedVersionNumber {
		return status, nil
	}

	inputs, err := s.loadMergeInputs(ctx, documentID, draft, head)
	if err != nil {
		return MergeStatus{}, err
	}
	preview, err := s.previewBounded(ctx, inputs.base.Body, inputs.published.Content.Body, draft.Content.Body)
	if err != nil {
		return MergeStatus{}, err
	}
	fields := merge.MergeFields(inputs.base.Fields(), inputs.published.Content.Fields(), draft.Content.Fields())

	status.NeedsMerge = true
	status.HasConflict = preview.HasConflict || len(fields.Conflicts) > 0
	status.CanAutoMerge = !status.HasConflict
	status.ConflictBlockCount = preview.ConflictBlockCount
	return status, nil
}

// commitMerge appends the merge commit built from draft on top of the
// published version. With approve set the commit goes live on main and the
// draft is closed as APPROVED; otherwise the commit becomes the new open
// draft and the old one is closed as REJECTED.
func (s *Service) commitMerge(ctx context.Context, tx store.Tx, draft store.Revision, head store.Head, content store.Content, actor, message string, approve bool) (store.Revision, error) {
	next := head.LatestVersionNumber + 1
	now := s.versions.Now()
	mergedFrom := draft.VersionNumber

	change := store.StatusChange{
		Status:     store.StatusApproved,
		ReviewedBy: actor,
		Comment:    fmt.Sprintf("merged into v%d", next),
		ReviewedAt: now,
	}
	in := versions.CreateInput{
		DocumentID:              draft.DocumentID,
		Content:                 content,
		AuthorID:                actor,
		BaseVersionNumber:       head.PublishedVersionNumber,
		ParentVersionNumber:     head.PublishedVersionNumber,
		MergedFromVersionNumber: &mergedFrom,
		Status:                  store.StatusApproved,
		Branch:                  store.BranchMain,
		Message:                 message,
	}
	if !approve {
		change.Status = store.StatusRejected
		change.Comment = fmt.Sprintf("superseded by merge v%d", next)
		in.Status = store.StatusDraft
		in.Branch = draft.BranchName
	}
	if in.Message == "" {
		in.Message = fmt.Sprintf("Merge v%d into v%d", draft.VersionNumber, head.PublishedVersionNumber)
	}

	// The draft is closed first so the merge commit does not collide with
	// it as a second open draft.
	if err := tx.UpdateStatus(ctx, draft.VersionNumber, change); err != nil {
		return store.Revision{}, err
	}
	created, err := s.versions.Append(ctx, tx, in)
	if err != nil {
		return store.Revision{}, err
	}
	return created.Revision, nil
}

// previewBounded runs the merge walk under the configured timeout. The walk
// is pure, so an abandoned run only costs CPU.
func (s *Service) previewBounded(ctx context.Context, base, current, draft string) (merge.Preview, error) {
	started := time.Now()
	preview, err := runBounded(ctx, s.mergeTimeout, func() merge.Preview {
		return merge.PreviewMerge(base, current, draft)
	})
	switch {
	case err != nil:
		s.metrics.ObserveMerge("timeout", time.Since(started))
	case preview.HasConflict:
		s.metrics.ObserveMerge("conflict", time.Since(started))
	default:
		s.metrics.ObserveMerge("clean", time.Since(started))
	}
	return preview, err
}

func runBounded[T any](ctx context.Context, timeout time.Duration, fn func() T) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan T, 1)
	go func() {
		done <- fn()
	}()
	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		var zero T
		return zero, &domain.Error{
			Kind:    domain.KindInternal,
			Code:    "MERGE_TIMEOUT",
			Message: fmt.Sprintf("merge did not finish within %s", timeout),
			Err:     ctx.Err(),
		}
	}
}

func validateTransition(in TransitionInput) error {
	if err := in.Validate(); err != nil {
		return domain.Validation("INVALID_TRANSITION_INPUT", "transition input is invalid", err)
	}
	return nil
}

func invalidTransition(action string, revision store.Revision) error {
	return domain.Validation(
		"INVALID_TRANSITION",
		fmt.Sprintf("cannot %s v%d in status %s", action, revision.VersionNumber, revision.Status),
		map[string]any{
			"documentId":    revision.DocumentID,
			"versionNumber": revision.VersionNumber,
			"status":        revision.Status,
		},
	)
}
