package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"folio/engine/internal/domain"
)

const uniqueViolation = "23505"

const revisionColumns = `
	id, document_id, version_number,
	title, body, summary, category, keywords, file_id,
	commit_hash, parent_revision_id, branch_name, author_id, commit_message, created_at,
	status, base_version_number, merged_from_version_number,
	reviewed_by, review_comment, reviewed_at`

// queryer is the part of *sql.DB and *sql.Tx the read helpers need.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Update locks the document's head row for the lifetime of the transaction.
// The head row is created on first use so the lock exists before the first
// revision does.
func (s *PostgresStore) Update(ctx context.Context, documentID string, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Internal(fmt.Errorf("begin transaction: %w", err), "begin document update")
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if _, err = sqlTx.ExecContext(ctx, `
		INSERT INTO document_heads (document_id) VALUES ($1)
		ON CONFLICT (document_id) DO NOTHING
	`, documentID); err != nil {
		return domain.Internal(fmt.Errorf("ensure document head: %w", err), "begin document update")
	}

	head, err := scanHead(sqlTx.QueryRowContext(ctx, `
		SELECT document_id, latest_version_number, published_version_number, has_draft, updated_at
		FROM document_heads
		WHERE document_id=$1
		FOR UPDATE
	`, documentID))
	if err != nil {
		return domain.Internal(fmt.Errorf("lock document head: %w", err), "begin document update")
	}

	tx := &postgresTx{tx: sqlTx, documentID: documentID, head: head}
	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return domain.Internal(fmt.Errorf("commit transaction: %w", err), "commit document update")
	}
	return nil
}

func (s *PostgresStore) Head(ctx context.Context, documentID string) (Head, error) {
	head, err := scanHead(s.db.QueryRowContext(ctx, `
		SELECT document_id, latest_version_number, published_version_number, has_draft, updated_at
		FROM document_heads
		WHERE document_id=$1
	`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Head{}, documentNotFound(documentID)
	}
	if err != nil {
		return Head{}, domain.Internal(fmt.Errorf("get document head: %w", err), "load document head")
	}
	if !head.Exists() {
		return Head{}, documentNotFound(documentID)
	}
	return head, nil
}

func (s *PostgresStore) Revision(ctx context.Context, documentID string, versionNumber int64) (Revision, error) {
	return getRevision(ctx, s.db, documentID, versionNumber)
}

func (s *PostgresStore) Revisions(ctx context.Context, documentID string) ([]Revision, error) {
	return listRevisionRows(ctx, s.db, documentID)
}

type postgresTx struct {
	tx         *sql.Tx
	documentID string
	head       Head
}

func (t *postgresTx) DocumentID() string {
	return t.documentID
}

func (t *postgresTx) Head(context.Context) (Head, error) {
	return t.head, nil
}

func (t *postgresTx) Revision(ctx context.Context, versionNumber int64) (Revision, error) {
	return getRevision(ctx, t.tx, t.documentID, versionNumber)
}

func (t *postgresTx) Revisions(ctx context.Context) ([]Revision, error) {
	return listRevisionRows(ctx, t.tx, t.documentID)
}

func (t *postgresTx) InsertRevision(ctx context.Context, revision Revision) error {
	var merged sql.NullInt64
	if revision.MergedFromVersionNumber != nil {
		merged = sql.NullInt64{Int64: *revision.MergedFromVersionNumber, Valid: true}
	}
	var parent sql.NullString
	if revision.ParentRevisionID != nil {
		parent = sql.NullString{String: *revision.ParentRevisionID, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO revisions (
			id, document_id, version_number,
			title, body, summary, category, keywords, file_id,
			commit_hash, parent_revision_id, branch_name, author_id, commit_message, created_at,
			status, base_version_number, merged_from_version_number
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		revision.ID, t.documentID, revision.VersionNumber,
		revision.Content.Title, revision.Content.Body, revision.Content.Summary,
		revision.Content.Category, revision.Content.Keywords, revision.Content.FileID,
		revision.CommitHash, parent, revision.BranchName, revision.AuthorID, revision.CommitMessage, revision.CreatedAt,
		string(revision.Status), revision.BaseVersionNumber, merged,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return versionRace(t.documentID, revision.VersionNumber)
		}
		return domain.Internal(fmt.Errorf("insert revision: %w", err), "insert revision")
	}
	return nil
}

func (t *postgresTx) UpdateStatus(ctx context.Context, versionNumber int64, change StatusChange) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE revisions
		SET status=$3, reviewed_by=$4, review_comment=$5, reviewed_at=$6
		WHERE document_id=$1 AND version_number=$2
	`, t.documentID, versionNumber, string(change.Status), change.ReviewedBy, change.Comment, change.ReviewedAt)
	if err != nil {
		return domain.Internal(fmt.Errorf("update revision status: %w", err), "update revision status")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Internal(fmt.Errorf("update revision status: %w", err), "update revision status")
	}
	if affected == 0 {
		return revisionNotFound(t.documentID, versionNumber)
	}
	return nil
}

func (t *postgresTx) SaveHead(ctx context.Context, head Head) error {
	if head.UpdatedAt.IsZero() {
		head.UpdatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE document_heads
		SET latest_version_number=$2, published_version_number=$3, has_draft=$4, updated_at=$5
		WHERE document_id=$1
	`, t.documentID, head.LatestVersionNumber, head.PublishedVersionNumber, head.HasDraft, head.UpdatedAt)
	if err != nil {
		return domain.Internal(fmt.Errorf("save document head: %w", err), "save document head")
	}
	head.DocumentID = t.documentID
	t.head = head
	return nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func getRevision(ctx context.Context, q queryer, documentID string, versionNumber int64) (Revision, error) {
	revision, err := scanRevision(q.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE document_id=$1 AND version_number=$2
	`, documentID, versionNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, revisionNotFound(documentID, versionNumber)
	}
	if err != nil {
		return Revision{}, domain.Internal(fmt.Errorf("get revision: %w", err), "load revision")
	}
	return revision, nil
}

func listRevisionRows(ctx context.Context, q queryer, documentID string) ([]Revision, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE document_id=$1
		ORDER BY version_number DESC
	`, documentID)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("list revisions: %w", err), "list revisions")
	}
	defer rows.Close()

	var items []Revision
	for rows.Next() {
		item, err := scanRevision(rows)
		if err != nil {
			return nil, domain.Internal(fmt.Errorf("scan revision: %w", err), "list revisions")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(fmt.Errorf("iterate revisions: %w", err), "list revisions")
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHead(row rowScanner) (Head, error) {
	var head Head
	err := row.Scan(
		&head.DocumentID,
		&head.LatestVersionNumber,
		&head.PublishedVersionNumber,
		&head.HasDraft,
		&head.UpdatedAt,
	)
	return head, err
}

func scanRevision(row rowScanner) (Revision, error) {
	var (
		item       Revision
		status     string
		parent     sql.NullString
		merged     sql.NullInt64
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.VersionNumber,
		&item.Content.Title,
		&item.Content.Body,
		&item.Content.Summary,
		&item.Content.Category,
		&item.Content.Keywords,
		&item.Content.FileID,
		&item.CommitHash,
		&parent,
		&item.BranchName,
		&item.AuthorID,
		&item.CommitMessage,
		&item.CreatedAt,
		&status,
		&item.BaseVersionNumber,
		&merged,
		&item.ReviewedBy,
		&item.ReviewComment,
		&reviewedAt,
	)
	if err != nil {
		return Revision{}, err
	}
	item.Status = Status(status)
	if parent.Valid {
		item.ParentRevisionID = &parent.String
	}
	if merged.Valid {
		item.MergedFromVersionNumber = &merged.Int64
	}
	if reviewedAt.Valid {
		item.ReviewedAt = &reviewedAt.Time
	}
	return item, nil
}
