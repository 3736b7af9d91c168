package store

import "time"

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Open reports whether a revision with this status is still a draft.
func (s Status) Open() bool {
	return s == StatusDraft || s == StatusPending
}

const (
	BranchMain  = "main"
	BranchDraft = "draft"
)

type Content struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Summary  string `json:"summary"`
	Category string `json:"category"`
	Keywords string `json:"keywords"`
	FileID   string `json:"fileId,omitempty"`
}

// Fields returns the single-valued fields, everything except Body.
func (c Content) Fields() map[string]string {
	return map[string]string{
		"title":    c.Title,
		"summary":  c.Summary,
		"category": c.Category,
		"keywords": c.Keywords,
		"fileId":   c.FileID,
	}
}

func (c Content) WithFields(fields map[string]string) Content {
	out := c
	out.Title = fields["title"]
	out.Summary = fields["summary"]
	out.Category = fields["category"]
	out.Keywords = fields["keywords"]
	out.FileID = fields["fileId"]
	return out
}

type Revision struct {
	ID                      string
	DocumentID              string
	VersionNumber           int64
	Content                 Content
	CommitHash              string
	ParentRevisionID        *string
	BranchName              string
	AuthorID                string
	CommitMessage           string
	CreatedAt               time.Time
	Status                  Status
	BaseVersionNumber       int64
	MergedFromVersionNumber *int64
	ReviewedBy              string
	ReviewComment           string
	ReviewedAt              *time.Time
}

func (r Revision) clone() Revision {
	out := r
	if r.ParentRevisionID != nil {
		parent := *r.ParentRevisionID
		out.ParentRevisionID = &parent
	}
	if r.MergedFromVersionNumber != nil {
		merged := *r.MergedFromVersionNumber
		out.MergedFromVersionNumber = &merged
	}
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		out.ReviewedAt = &at
	}
	return out
}

// Head is the mutable per-document pointer record. A zero
// LatestVersionNumber means the document has no revisions yet.
type Head struct {
	DocumentID             string
	LatestVersionNumber    int64
	PublishedVersionNumber int64
	HasDraft               bool
	UpdatedAt              time.Time
}

func (h Head) Exists() bool {
	return h.LatestVersionNumber > 0
}

// StatusChange is the only mutation a stored revision accepts.
type StatusChange struct {
	Status     Status
	ReviewedBy string
	Comment    string
	ReviewedAt time.Time
}
