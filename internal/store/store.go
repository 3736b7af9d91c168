// Package store persists revisions and per-document head records.
//
// All writes for a document go through Update, which serializes callers per
// document and applies the writes made through the Tx as one unit.
package store

import (
	"context"
	"fmt"

	"folio/engine/internal/domain"
)

type Store interface {
	// Update runs fn with exclusive access to the document. Writes made
	// through tx become visible together when fn returns nil and are
	// discarded otherwise.
	Update(ctx context.Context, documentID string, fn func(tx Tx) error) error
	Head(ctx context.Context, documentID string) (Head, error)
	Revision(ctx context.Context, documentID string, versionNumber int64) (Revision, error)
	// Revisions lists a document's revisions newest first.
	Revisions(ctx context.Context, documentID string) ([]Revision, error)
	Ping(ctx context.Context) error
}

type Tx interface {
	DocumentID() string
	// Head returns the document's head. A document without revisions gets a
	// zero head rather than an error.
	Head(ctx context.Context) (Head, error)
	Revision(ctx context.Context, versionNumber int64) (Revision, error)
	Revisions(ctx context.Context) ([]Revision, error)
	InsertRevision(ctx context.Context, revision Revision) error
	UpdateStatus(ctx context.Context, versionNumber int64, change StatusChange) error
	SaveHead(ctx context.Context, head Head) error
}

func documentNotFound(documentID string) error {
	return domain.NotFound("DOCUMENT_NOT_FOUND", fmt.Sprintf("document %s has no revisions", documentID), map[string]any{"documentId": documentID})
}

func revisionNotFound(documentID string, versionNumber int64) error {
	return domain.NotFound(
		"REVISION_NOT_FOUND",
		fmt.Sprintf("document %s has no revision %d", documentID, versionNumber),
		map[string]any{"documentId": documentID, "versionNumber": versionNumber},
	)
}

func versionRace(documentID string, versionNumber int64) error {
	return domain.Conflict(
		"VERSION_RACE",
		fmt.Sprintf("revision %d of document %s already exists", versionNumber, documentID),
		map[string]any{"documentId": documentID, "versionNumber": versionNumber},
	)
}
