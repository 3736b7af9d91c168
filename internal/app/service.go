// Package app coordinates publishing and approval. Every state change a
// document goes through after creation (submit, approve, reject, merge
// resolution, direct publish) runs here, inside the document's store update.
package app

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"folio/engine/internal/domain"
	"folio/engine/internal/gitrepo"
	"folio/engine/internal/logging"
	"folio/engine/internal/metrics"
	"folio/engine/internal/previewcache"
	"folio/engine/internal/store"
	"folio/engine/internal/versions"
)

const defaultMergeTimeout = 10 * time.Second

// Mirror receives every committed revision. gitrepo.Mirror implements it.
type Mirror interface {
	RecordRevision(revision store.Revision) (gitrepo.Commit, error)
	Publish(revision store.Revision, actor string) (gitrepo.Commit, error)
}

// FileChecker resolves opaque file references. filestore.MinioChecker
// implements it.
type FileChecker interface {
	Exists(ctx context.Context, fileID string) (bool, error)
}

type Options struct {
	Store    store.Store
	Previews previewcache.Cache
	// Mirror and Files are optional.
	Mirror       Mirror
	Files        FileChecker
	Metrics      *metrics.Metrics
	Logger       logging.Logger
	MergeTimeout time.Duration
}

type Service struct {
	store        store.Store
	versions     *versions.Service
	previews     previewcache.Cache
	mirror       Mirror
	files        FileChecker
	metrics      *metrics.Metrics
	logger       logging.Logger
	mergeTimeout time.Duration
}

func NewService(opts Options) *Service {
	svc := &Service{
		store:        opts.Store,
		versions:     versions.NewService(opts.Store),
		previews:     opts.Previews,
		mirror:       opts.Mirror,
		files:        opts.Files,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		mergeTimeout: opts.MergeTimeout,
	}
	if svc.previews == nil {
		svc.previews = previewcache.NewMemoryCache(previewcache.DefaultTTL)
	}
	if svc.logger == nil {
		svc.logger = logging.New("coordinator")
	}
	if svc.mergeTimeout <= 0 {
		svc.mergeTimeout = defaultMergeTimeout
	}
	return svc
}

// Versions exposes the underlying version service for read paths.
func (s *Service) Versions() *versions.Service {
	return s.versions
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateRevision records a new draft. Workflow fields set by the caller are
// ignored; drafts always start in DRAFT.
func (s *Service) CreateRevision(ctx context.Context, in versions.CreateInput) (versions.CreateResult, error) {
	in.Status = ""
	in.MergedFromVersionNumber = nil
	in.ParentVersionNumber = 0
	if err := s.checkFile(ctx, in.Content.FileID); err != nil {
		return versions.CreateResult{}, err
	}

	result, err := s.versions.CreateRevision(ctx, in)
	if err != nil {
		return versions.CreateResult{}, err
	}
	if result.Created {
		s.metrics.AddRevisionCreated(string(result.Revision.Status))
		s.record(result.Revision)
	}
	return result, nil
}

type PublishInput struct {
	DocumentID string        `json:"documentId"`
	Content    store.Content `json:"content"`
	AuthorID   string        `json:"authorId"`
	Message    string        `json:"message"`
}

func (in PublishInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DocumentID, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.AuthorID, validation.Required),
	)
}

// Publish writes content straight to main as a new APPROVED revision on top
// of the published version. An open draft is left alone; it will need a
// merge when it is approved.
func (s *Service) Publish(ctx context.Context, in PublishInput) (store.Revision, error) {
	if err := in.Validate(); err != nil {
		return store.Revision{}, domain.Validation("INVALID_PUBLISH", "publish input is invalid", err)
	}
	if err := s.checkFile(ctx, in.Content.FileID); err != nil {
		return store.Revision{}, err
	}

	var published store.Revision
	err := s.store.Update(ctx, in.DocumentID, func(tx store.Tx) error {
		head, err := tx.Head(ctx)
		if err != nil {
			return err
		}
		result, err := s.versions.Append(ctx, tx, versions.CreateInput{
			DocumentID:          in.DocumentID,
			Content:             in.Content,
			AuthorID:            in.AuthorID,
			BaseVersionNumber:   head.PublishedVersionNumber,
			Branch:              store.BranchMain,
			Message:             in.Message,
			Status:              store.StatusApproved,
			ParentVersionNumber: head.PublishedVersionNumber,
		})
		if err != nil {
			return err
		}
		published = result.Revision
		return nil
	})
	s.metrics.AddTransition("publish", Outcome(err))
	if err != nil {
		return store.Revision{}, err
	}

	s.metrics.AddRevisionCreated(string(published.Status))
	s.logger.Infow("revision published",
		"document_id", in.DocumentID,
		"version", published.VersionNumber,
		"author_id", in.AuthorID,
	)
	s.record(published)
	s.publishMirror(published, in.AuthorID)
	return published, nil
}

func (s *Service) GetRevision(ctx context.Context, documentID string, versionNumber int64) (store.Revision, error) {
	return s.versions.GetRevision(ctx, documentID, versionNumber)
}

func (s *Service) ListRevisions(ctx context.Context, documentID string) ([]store.Revision, error) {
	return s.versions.ListRevisions(ctx, documentID)
}

func (s *Service) DiffRevisions(ctx context.Context, documentID string, fromVersion, toVersion int64) (versions.DiffResult, error) {
	return s.versions.DiffRevisions(ctx, documentID, fromVersion, toVersion)
}

type State string

const (
	StateNoDraft            State = "NO_DRAFT"
	StateDraftPending       State = "DRAFT_PENDING"
	StatePublishedWithDraft State = "PUBLISHED_WITH_DRAFT"
)

type DocumentStatus struct {
	DocumentID       string `json:"documentId"`
	State            State  `json:"state"`
	LatestVersion    int64  `json:"latestVersion"`
	PublishedVersion int64  `json:"publishedVersion"`
	HasDraft         bool   `json:"hasDraft"`
	// DraftVersion is zero when the document has no open draft.
	DraftVersion int64 `json:"draftVersion"`
}

// DocumentState reports where the document sits in the approval state
// machine, derived from its open draft.
func (s *Service) DocumentState(ctx context.Context, documentID string) (DocumentStatus, error) {
	head, err := s.store.Head(ctx, documentID)
	if err != nil {
		return DocumentStatus{}, err
	}
	revisions, err := s.store.Revisions(ctx, documentID)
	if err != nil {
		return DocumentStatus{}, err
	}

	status := DocumentStatus{
		DocumentID:       documentID,
		State:            StateNoDraft,
		LatestVersion:    head.LatestVersionNumber,
		PublishedVersion: head.PublishedVersionNumber,
		HasDraft:         head.HasDraft,
	}
	if draft, ok := versions.OpenDraft(revisions); ok {
		status.DraftVersion = draft.VersionNumber
		status.State = StatePublishedWithDraft
		if draft.Status == store.StatusPending {
			status.State = StateDraftPending
		}
	}
	return status, nil
}

func (s *Service) checkFile(ctx context.Context, fileID string) error {
	if fileID == "" || s.files == nil {
		return nil
	}
	ok, err := s.files.Exists(ctx, fileID)
	if err != nil {
		return domain.Internal(err, "check file reference")
	}
	if !ok {
		return domain.Validation("UNKNOWN_FILE", fmt.Sprintf("file %s does not exist", fileID), map[string]any{"fileId": fileID})
	}
	return nil
}

// targetRevision loads versionNumber, or the open draft when it is zero.
func targetRevision(ctx context.Context, tx store.Tx, versionNumber int64) (store.Revision, error) {
	if versionNumber > 0 {
		return tx.Revision(ctx, versionNumber)
	}
	revisions, err := tx.Revisions(ctx)
	if err != nil {
		return store.Revision{}, err
	}
	if draft, ok := versions.OpenDraft(revisions); ok {
		return draft, nil
	}
	return store.Revision{}, noOpenDraft(tx.DocumentID())
}

func openDraftOf(ctx context.Context, s store.Store, documentID string, versionNumber int64) (store.Revision, error) {
	if versionNumber > 0 {
		return s.Revision(ctx, documentID, versionNumber)
	}
	revisions, err := s.Revisions(ctx, documentID)
	if err != nil {
		return store.Revision{}, err
	}
	if draft, ok := versions.OpenDraft(revisions); ok {
		return draft, nil
	}
	return store.Revision{}, noOpenDraft(documentID)
}

func noOpenDraft(documentID string) error {
	return domain.NotFound("NO_OPEN_DRAFT", fmt.Sprintf("document %s has no open draft", documentID), map[string]any{"documentId": documentID})
}

func (s *Service) record(revision store.Revision) {
	if s.mirror == nil {
		return
	}
	if _, err := s.mirror.RecordRevision(revision); err != nil {
		s.logger.Warnw("mirror record failed",
			"document_id", revision.DocumentID,
			"version", revision.VersionNumber,
			"error", err,
		)
	}
}

func (s *Service) publishMirror(revision store.Revision, actor string) {
	if s.mirror == nil {
		return
	}
	if _, err := s.mirror.Publish(revision, actor); err != nil {
		s.logger.Warnw("mirror publish failed",
			"document_id", revision.DocumentID,
			"version", revision.VersionNumber,
			"error", err,
		)
	}
}
