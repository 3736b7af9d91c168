package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"

	"folio/engine/internal/domain"
	"folio/engine/internal/locker"
)

var (
	tblRevisions = "revisions"
	tblHeads     = "heads"
)

var memorySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblRevisions: {
			Name: tblRevisions,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:   "id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "DocumentID"},
							&memdb.IntFieldIndex{Field: "VersionNumber"},
						},
					},
				},
				"document_id": {
					Name:    "document_id",
					Indexer: &memdb.StringFieldIndex{Field: "DocumentID"},
				},
			},
		},
		tblHeads: {
			Name: tblHeads,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "DocumentID"},
				},
			},
		},
	},
}

// MemoryStore keeps everything in a go-memdb database. Each Update holds the
// document's lock while fn runs and then applies the buffered writes in a
// single memdb write transaction.
type MemoryStore struct {
	db    *memdb.MemDB
	locks *locker.Locker
}

func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &MemoryStore{db: db, locks: locker.New()}, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, documentID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Internal(err, "begin document update")
	}
	s.locks.Lock(documentID)
	defer func() {
		_ = s.locks.Unlock(documentID)
	}()

	tx := &memoryTx{
		documentID: documentID,
		snapshot:   s.db.Txn(false),
		revisions:  make(map[int64]*pendingRevision),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.apply(tx)
}

func (s *MemoryStore) apply(tx *memoryTx) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	versions := make([]int64, 0, len(tx.revisions))
	for version := range tx.revisions {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	for _, version := range versions {
		pending := tx.revisions[version]
		if pending.inserted {
			existing, err := txn.First(tblRevisions, "id", tx.documentID, version)
			if err != nil {
				return domain.Internal(fmt.Errorf("find revision: %w", err), "apply document update")
			}
			if existing != nil {
				return versionRace(tx.documentID, version)
			}
		}
		record := pending.revision.clone()
		if err := txn.Insert(tblRevisions, &record); err != nil {
			return domain.Internal(fmt.Errorf("insert revision: %w", err), "apply document update")
		}
	}
	if tx.head != nil {
		head := *tx.head
		if err := txn.Insert(tblHeads, &head); err != nil {
			return domain.Internal(fmt.Errorf("insert head: %w", err), "apply document update")
		}
	}
	txn.Commit()
	return nil
}

func (s *MemoryStore) Head(_ context.Context, documentID string) (Head, error) {
	head, err := findHead(s.db.Txn(false), documentID)
	if err != nil {
		return Head{}, err
	}
	if !head.Exists() {
		return Head{}, documentNotFound(documentID)
	}
	return head, nil
}

func (s *MemoryStore) Revision(_ context.Context, documentID string, versionNumber int64) (Revision, error) {
	return findRevision(s.db.Txn(false), documentID, versionNumber)
}

func (s *MemoryStore) Revisions(_ context.Context, documentID string) ([]Revision, error) {
	return listRevisions(s.db.Txn(false), documentID)
}

type pendingRevision struct {
	revision Revision
	inserted bool
}

type memoryTx struct {
	documentID string
	snapshot   *memdb.Txn
	revisions  map[int64]*pendingRevision
	head       *Head
}

func (t *memoryTx) DocumentID() string {
	return t.documentID
}

func (t *memoryTx) Head(context.Context) (Head, error) {
	if t.head != nil {
		return *t.head, nil
	}
	return findHead(t.snapshot, t.documentID)
}

func (t *memoryTx) Revision(_ context.Context, versionNumber int64) (Revision, error) {
	if pending, ok := t.revisions[versionNumber]; ok {
		return pending.revision.clone(), nil
	}
	return findRevision(t.snapshot, t.documentID, versionNumber)
}

func (t *memoryTx) Revisions(context.Context) ([]Revision, error) {
	stored, err := listRevisions(t.snapshot, t.documentID)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int64]Revision, len(stored)+len(t.revisions))
	for _, revision := range stored {
		byVersion[revision.VersionNumber] = revision
	}
	for version, pending := range t.revisions {
		byVersion[version] = pending.revision.clone()
	}
	out := make([]Revision, 0, len(byVersion))
	for _, revision := range byVersion {
		out = append(out, revision)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (t *memoryTx) InsertRevision(ctx context.Context, revision Revision) error {
	if _, ok := t.revisions[revision.VersionNumber]; ok {
		return versionRace(t.documentID, revision.VersionNumber)
	}
	if _, err := findRevision(t.snapshot, t.documentID, revision.VersionNumber); err == nil {
		return versionRace(t.documentID, revision.VersionNumber)
	}
	revision.DocumentID = t.documentID
	t.revisions[revision.VersionNumber] = &pendingRevision{revision: revision.clone(), inserted: true}
	return nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, versionNumber int64, change StatusChange) error {
	pending, ok := t.revisions[versionNumber]
	if !ok {
		revision, err := findRevision(t.snapshot, t.documentID, versionNumber)
		if err != nil {
			return err
		}
		pending = &pendingRevision{revision: revision}
		t.revisions[versionNumber] = pending
	}
	pending.revision.Status = change.Status
	pending.revision.ReviewedBy = change.ReviewedBy
	pending.revision.ReviewComment = change.Comment
	at := change.ReviewedAt
	pending.revision.ReviewedAt = &at
	return nil
}

func (t *memoryTx) SaveHead(_ context.Context, head Head) error {
	head.DocumentID = t.documentID
	t.head = &head
	return nil
}

func findHead(txn *memdb.Txn, documentID string) (Head, error) {
	raw, err := txn.First(tblHeads, "id", documentID)
	if err != nil {
		return Head{}, domain.Internal(fmt.Errorf("find head: %w", err), "load document head")
	}
	if raw == nil {
		return Head{DocumentID: documentID}, nil
	}
	return *raw.(*Head), nil
}

func findRevision(txn *memdb.Txn, documentID string, versionNumber int64) (Revision, error) {
	raw, err := txn.First(tblRevisions, "id", documentID, versionNumber)
	if err != nil {
		return Revision{}, domain.Internal(fmt.Errorf("find revision: %w", err), "load revision")
	}
	if raw == nil {
		return Revision{}, revisionNotFound(documentID, versionNumber)
	}
	return raw.(*Revision).clone(), nil
}

func listRevisions(txn *memdb.Txn, documentID string) ([]Revision, error) {
	iter, err := txn.Get(tblRevisions, "document_id", documentID)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("list revisions: %w", err), "list revisions")
	}
	var out []Revision
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*Revision).clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}
