// Package versions keeps a document's revision chain: it allocates version
// numbers, derives commit hashes, supersedes drafts and keeps the head
// record consistent with the revisions beneath it.
package versions

import (
	"context"
	"fmt"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"folio/engine/internal/diff"
	"folio/engine/internal/domain"
	"folio/engine/internal/store"
	"folio/engine/internal/util"
)

type CreateInput struct {
	DocumentID        string        `json:"documentId"`
	Content           store.Content `json:"content"`
	AuthorID          string        `json:"authorId"`
	BaseVersionNumber int64         `json:"baseVersionNumber"`
	Branch            string        `json:"branch"`
	Message           string        `json:"message"`
	Supersede         bool          `json:"supersede"`

	// Set by the coordinator for merge commits and direct publishes.
	Status                  store.Status `json:"-"`
	MergedFromVersionNumber *int64       `json:"-"`
	ParentVersionNumber     int64        `json:"-"`
}

func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DocumentID, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.AuthorID, validation.Required),
		validation.Field(&in.BaseVersionNumber, validation.Min(int64(0))),
		validation.Field(&in.ParentVersionNumber, validation.Min(int64(0))),
		validation.Field(&in.Branch, validation.Length(0, 200)),
		validation.Field(&in.Status, validation.In(store.StatusDraft, store.StatusPending, store.StatusApproved)),
	)
}

type CreateResult struct {
	Revision store.Revision
	// Created is false when an identical open draft was returned instead.
	Created bool
}

type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type DiffResult struct {
	DocumentID  string        `json:"documentId"`
	FromVersion int64         `json:"fromVersion"`
	ToVersion   int64         `json:"toVersion"`
	Lines       []diff.Line   `json:"lines"`
	Edits       []diff.Edit   `json:"edits"`
	Stats       diff.Stats    `json:"stats"`
	Fields      []FieldChange `json:"fields"`
}

type Service struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

func NewService(s store.Store) *Service {
	return &Service{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return util.NewID("rev") },
	}
}

func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) CreateRevision(ctx context.Context, in CreateInput) (CreateResult, error) {
	if err := validateCreate(in); err != nil {
		return CreateResult{}, err
	}
	var result CreateResult
	err := s.store.Update(ctx, in.DocumentID, func(tx store.Tx) error {
		var err error
		result, err = s.Append(ctx, tx, in)
		return err
	})
	if err != nil {
		return CreateResult{}, err
	}
	return result, nil
}

// Append creates the next revision inside an existing document update. It
// must be called from within store.Update for in.DocumentID.
func (s *Service) Append(ctx context.Context, tx store.Tx, in CreateInput) (CreateResult, error) {
	if err := validateCreate(in); err != nil {
		return CreateResult{}, err
	}
	status := in.Status
	if status == "" {
		status = store.StatusDraft
	}

	head, err := tx.Head(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	revisions, err := tx.Revisions(ctx)
	if err != nil {
		return CreateResult{}, err
	}

	if in.BaseVersionNumber > 0 {
		base, ok := findVersion(revisions, in.BaseVersionNumber)
		if !ok {
			return CreateResult{}, domain.Validation(
				"INVALID_BASE_VERSION",
				fmt.Sprintf("base version %d does not exist", in.BaseVersionNumber),
				map[string]any{"documentId": in.DocumentID, "baseVersionNumber": in.BaseVersionNumber},
			)
		}
		if err := CheckBase(base); err != nil {
			return CreateResult{}, err
		}
	}

	parentVersion := in.ParentVersionNumber
	if parentVersion == 0 {
		parentVersion = in.BaseVersionNumber
	}
	if parentVersion == 0 {
		parentVersion = head.LatestVersionNumber
	}
	var parent *store.Revision
	if parentVersion > 0 {
		found, ok := findVersion(revisions, parentVersion)
		if !ok {
			return CreateResult{}, domain.Validation(
				"INVALID_PARENT_VERSION",
				fmt.Sprintf("parent version %d does not exist", parentVersion),
				map[string]any{"documentId": in.DocumentID, "parentVersionNumber": parentVersion},
			)
		}
		parent = &found
	}
	parentHash := ""
	if parent != nil {
		parentHash = parent.CommitHash
	}
	hash := CommitHash(parentHash, in.Content)

	next := head.LatestVersionNumber + 1
	now := s.now()

	if status.Open() {
		if draft, ok := OpenDraft(revisions); ok {
			if isRetry(revisions, draft, in) {
				return CreateResult{Revision: draft}, nil
			}
			if !in.Supersede {
				return CreateResult{}, domain.Conflict(
					"DRAFT_EXISTS",
					fmt.Sprintf("document %s already has open draft v%d", in.DocumentID, draft.VersionNumber),
					map[string]any{"documentId": in.DocumentID, "draftVersion": draft.VersionNumber, "draftStatus": draft.Status},
				)
			}
			if err := tx.UpdateStatus(ctx, draft.VersionNumber, store.StatusChange{
				Status:     store.StatusRejected,
				ReviewedBy: in.AuthorID,
				Comment:    fmt.Sprintf("superseded by v%d", next),
				ReviewedAt: now,
			}); err != nil {
				return CreateResult{}, err
			}
		}
	}

	branch := in.Branch
	if branch == "" {
		branch = store.BranchDraft
		if status == store.StatusApproved {
			branch = store.BranchMain
		}
	}

	revision := store.Revision{
		ID:                      s.newID(),
		DocumentID:              in.DocumentID,
		VersionNumber:           next,
		Content:                 in.Content,
		CommitHash:              hash,
		BranchName:              branch,
		AuthorID:                in.AuthorID,
		CommitMessage:           in.Message,
		CreatedAt:               now,
		Status:                  status,
		BaseVersionNumber:       in.BaseVersionNumber,
		MergedFromVersionNumber: in.MergedFromVersionNumber,
	}
	if parent != nil {
		parentID := parent.ID
		revision.ParentRevisionID = &parentID
	}
	if err := tx.InsertRevision(ctx, revision); err != nil {
		return CreateResult{}, err
	}

	head.LatestVersionNumber = next
	if status == store.StatusApproved {
		head.PublishedVersionNumber = next
	}
	if _, err := s.RefreshHead(ctx, tx, head); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Revision: revision, Created: true}, nil
}

// RefreshHead recomputes HasDraft from the revisions visible to tx and
// saves head.
func (s *Service) RefreshHead(ctx context.Context, tx store.Tx, head store.Head) (store.Head, error) {
	revisions, err := tx.Revisions(ctx)
	if err != nil {
		return store.Head{}, err
	}
	head.HasDraft = HasDraft(revisions, head.PublishedVersionNumber)
	head.UpdatedAt = s.now()
	if err := tx.SaveHead(ctx, head); err != nil {
		return store.Head{}, err
	}
	head.DocumentID = tx.DocumentID()
	return head, nil
}

func (s *Service) GetRevision(ctx context.Context, documentID string, versionNumber int64) (store.Revision, error) {
	return s.store.Revision(ctx, documentID, versionNumber)
}

// ListRevisions returns the document's revisions, newest first.
func (s *Service) ListRevisions(ctx context.Context, documentID string) ([]store.Revision, error) {
	if _, err := s.store.Head(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.Revisions(ctx, documentID)
}

func (s *Service) Head(ctx context.Context, documentID string) (store.Head, error) {
	return s.store.Head(ctx, documentID)
}

func (s *Service) DiffRevisions(ctx context.Context, documentID string, fromVersion, toVersion int64) (DiffResult, error) {
	var from, to store.Revision
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		from, err = s.store.Revision(gctx, documentID, fromVersion)
		return err
	})
	g.Go(func() error {
		var err error
		to, err = s.store.Revision(gctx, documentID, toVersion)
		return err
	})
	if err := g.Wait(); err != nil {
		return DiffResult{}, err
	}

	lines := diff.Diff(from.Content.Body, to.Content.Body)
	return DiffResult{
		DocumentID:  documentID,
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		Lines:       lines,
		Edits:       diff.Compile(lines),
		Stats:       diff.Summarize(lines),
		Fields:      CompareFields(from.Content, to.Content),
	}, nil
}

// CompareFields lists the single-valued fields that differ, by field name.
func CompareFields(from, to store.Content) []FieldChange {
	before, after := from.Fields(), to.Fields()
	names := make([]string, 0, len(before))
	for name := range before {
		names = append(names, name)
	}
	sort.Strings(names)

	changes := []FieldChange{}
	for _, name := range names {
		if before[name] != after[name] {
			changes = append(changes, FieldChange{Field: name, From: before[name], To: after[name]})
		}
	}
	return changes
}

// CheckBase rejects a base that was never published. Only APPROVED
// revisions can serve as the common ancestor of a merge.
func CheckBase(base store.Revision) error {
	if base.Status == store.StatusApproved {
		return nil
	}
	return domain.Validation(
		"INVALID_BASE_VERSION",
		fmt.Sprintf("base version %d is %s; a base must be an approved revision", base.VersionNumber, base.Status),
		map[string]any{"documentId": base.DocumentID, "baseVersionNumber": base.VersionNumber, "baseStatus": base.Status},
	)
}

// OpenDraft returns the newest revision still in DRAFT or PENDING.
// revisions must be ordered newest first.
func OpenDraft(revisions []store.Revision) (store.Revision, bool) {
	for _, revision := range revisions {
		if revision.Status.Open() {
			return revision, true
		}
	}
	return store.Revision{}, false
}

// HasDraft reports whether an open revision exists beyond published.
func HasDraft(revisions []store.Revision, published int64) bool {
	for _, revision := range revisions {
		if revision.Status.Open() && revision.VersionNumber > published {
			return true
		}
	}
	return false
}

func findVersion(revisions []store.Revision, versionNumber int64) (store.Revision, bool) {
	for _, revision := range revisions {
		if revision.VersionNumber == versionNumber {
			return revision, true
		}
	}
	return store.Revision{}, false
}

// isRetry reports whether in would recreate draft: same base, and the same
// hash under draft's own parent.
func isRetry(revisions []store.Revision, draft store.Revision, in CreateInput) bool {
	if draft.BaseVersionNumber != in.BaseVersionNumber || draft.AuthorID != in.AuthorID {
		return false
	}
	parentHash := ""
	if draft.ParentRevisionID != nil {
		for _, revision := range revisions {
			if revision.ID == *draft.ParentRevisionID {
				parentHash = revision.CommitHash
				break
			}
		}
	}
	return CommitHash(parentHash, in.Content) == draft.CommitHash
}

func validateCreate(in CreateInput) error {
	if err := in.Validate(); err != nil {
		return domain.Validation("INVALID_REVISION", "revision input is invalid", err)
	}
	return nil
}
