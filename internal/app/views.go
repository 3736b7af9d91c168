package app

import (
	"time"

	"folio/engine/internal/store"
)

type revisionView struct {
	ID                      string        `json:"id"`
	DocumentID              string        `json:"documentId"`
	VersionNumber           int64         `json:"versionNumber"`
	Content                 store.Content `json:"content"`
	CommitHash              string        `json:"commitHash"`
	ParentRevisionID        *string       `json:"parentRevisionId"`
	BranchName              string        `json:"branchName"`
	AuthorID                string        `json:"authorId"`
	CommitMessage           string        `json:"commitMessage"`
	CreatedAt               time.Time     `json:"createdAt"`
	Status                  store.Status  `json:"status"`
	BaseVersionNumber       int64         `json:"baseVersionNumber"`
	MergedFromVersionNumber *int64        `json:"mergedFromVersionNumber"`
	ReviewedBy              string        `json:"reviewedBy,omitempty"`
	ReviewComment           string        `json:"reviewComment,omitempty"`
	ReviewedAt              *time.Time    `json:"reviewedAt,omitempty"`
}

func newRevisionView(r store.Revision) revisionView {
	return revisionView{
		ID:                      r.ID,
		DocumentID:              r.DocumentID,
		VersionNumber:           r.VersionNumber,
		Content:                 r.Content,
		CommitHash:              r.CommitHash,
		ParentRevisionID:        r.ParentRevisionID,
		BranchName:              r.BranchName,
		AuthorID:                r.AuthorID,
		CommitMessage:           r.CommitMessage,
		CreatedAt:               r.CreatedAt,
		Status:                  r.Status,
		BaseVersionNumber:       r.BaseVersionNumber,
		MergedFromVersionNumber: r.MergedFromVersionNumber,
		ReviewedBy:              r.ReviewedBy,
		ReviewComment:           r.ReviewComment,
		ReviewedAt:              r.ReviewedAt,
	}
}
