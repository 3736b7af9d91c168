// Package gitrepo mirrors each document's revision chain into its own git
// repository so the history can be inspected with ordinary git tooling.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"folio/engine/internal/locker"
	"folio/engine/internal/store"
)

const contentFile = "content.json"

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Mirror struct {
	baseDir string
	locks   *locker.Locker
}

func NewMirror(baseDir string) *Mirror {
	return &Mirror{
		baseDir: baseDir,
		locks:   locker.New(),
	}
}

// RecordRevision commits the revision's content onto its branch. Open
// drafts start from the tag of their base version when one exists.
func (m *Mirror) RecordRevision(revision store.Revision) (Commit, error) {
	unlock := m.lock(revision.DocumentID)
	defer unlock()

	repo, err := m.openOrInit(revision.DocumentID, revision.CreatedAt)
	if err != nil {
		return Commit{}, err
	}

	branch := revision.BranchName
	if branch == "" {
		branch = store.BranchMain
	}
	if branch != store.BranchMain {
		from := plumbing.NewBranchReferenceName(store.BranchMain)
		if revision.Status.Open() && revision.BaseVersionNumber > 0 {
			if tag, err := tagCommit(repo, versionTag(revision.BaseVersionNumber)); err == nil {
				if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), tag)); err != nil {
					return Commit{}, fmt.Errorf("reset branch %s: %w", branch, err)
				}
			}
		}
		if err := ensureBranch(repo, branch, from); err != nil {
			return Commit{}, err
		}
	}

	message := fmt.Sprintf("%s\n\nrevision: v%d status=%s base=v%d hash=%s",
		firstNonEmpty(revision.CommitMessage, fmt.Sprintf("Revision v%d", revision.VersionNumber)),
		revision.VersionNumber, revision.Status, revision.BaseVersionNumber, revision.CommitHash)
	hash, err := commit(repo, branch, revision.Content, revision.AuthorID, message, revision.CreatedAt, true)
	if err != nil {
		return Commit{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// Publish makes revision the head of main, copy-committing its content when
// main differs, and tags the result v<version>.
func (m *Mirror) Publish(revision store.Revision, actor string) (Commit, error) {
	unlock := m.lock(revision.DocumentID)
	defer unlock()

	repo, err := m.openOrInit(revision.DocumentID, revision.CreatedAt)
	if err != nil {
		return Commit{}, err
	}

	mainRef, err := repo.Reference(plumbing.NewBranchReferenceName(store.BranchMain), true)
	if err != nil {
		return Commit{}, fmt.Errorf("resolve main: %w", err)
	}
	head, err := repo.CommitObject(mainRef.Hash())
	if err != nil {
		return Commit{}, fmt.Errorf("load main commit: %w", err)
	}

	current, err := readContentFromCommit(head)
	if err != nil || current != revision.Content {
		message := fmt.Sprintf("Publish v%d\n\npublish: version=v%d actor=%s mode=copy-commit",
			revision.VersionNumber, revision.VersionNumber, actor)
		hash, err := commit(repo, store.BranchMain, revision.Content, firstNonEmpty(actor, revision.AuthorID), message, time.Now().UTC(), true)
		if err != nil {
			return Commit{}, err
		}
		if head, err = repo.CommitObject(hash); err != nil {
			return Commit{}, fmt.Errorf("read publish commit: %w", err)
		}
	}

	_, err = repo.CreateTag(versionTag(revision.VersionNumber), head.Hash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "folio",
			Email: "folio@localhost",
			When:  time.Now(),
		},
		Message: versionTag(revision.VersionNumber),
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return Commit{}, fmt.Errorf("create tag: %w", err)
	}
	return toCommit(head), nil
}

// History walks branch newest first. A limit of zero or less reads
// everything.
func (m *Mirror) History(documentID, branch string, limit int) ([]Commit, error) {
	unlock := m.lock(documentID)
	defer unlock()

	repo, err := git.PlainOpen(m.repoPath(documentID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt reads the content stored at ref: a branch, a v<N> tag or a
// commit hash.
func (m *Mirror) ContentAt(documentID, ref string) (store.Content, error) {
	unlock := m.lock(documentID)
	defer unlock()

	repo, err := git.PlainOpen(m.repoPath(documentID))
	if err != nil {
		return store.Content{}, fmt.Errorf("open repo: %w", err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return store.Content{}, fmt.Errorf("resolve %s: %w", ref, err)
	}
	commitObj, err := repo.CommitObject(*hash)
	if err != nil {
		tag, tagErr := repo.TagObject(*hash)
		if tagErr != nil {
			return store.Content{}, fmt.Errorf("read commit %s: %w", ref, err)
		}
		if commitObj, err = tag.Commit(); err != nil {
			return store.Content{}, fmt.Errorf("read tagged commit %s: %w", ref, err)
		}
	}
	return readContentFromCommit(commitObj)
}

func (m *Mirror) repoPath(documentID string) string {
	return filepath.Join(m.baseDir, documentID)
}

func (m *Mirror) lock(documentID string) func() {
	m.locks.Lock(documentID)
	return func() {
		_ = m.locks.Unlock(documentID)
	}
}

// openOrInit opens the document's repository, creating it with an empty
// baseline commit on main the first time.
func (m *Mirror) openOrInit(documentID string, when time.Time) (*git.Repository, error) {
	path := m.repoPath(documentID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	if err := writeContent(worktree.Filesystem.Root(), store.Content{}); err != nil {
		return nil, err
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return nil, fmt.Errorf("git add baseline: %w", err)
	}
	if when.IsZero() {
		when = time.Now()
	}
	hash, err := worktree.Commit("Initialize document mirror", &git.CommitOptions{
		Author: signature("folio", when),
	})
	if err != nil {
		return nil, fmt.Errorf("commit baseline: %w", err)
	}
	mainRef := plumbing.NewBranchReferenceName(store.BranchMain)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(mainRef, hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, mainRef)); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func ensureBranch(repo *git.Repository, branch string, from plumbing.ReferenceName) error {
	branchRef := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(branchRef, true); err == nil {
		return nil
	}
	fromRef, err := repo.Reference(from, true)
	if err != nil {
		return fmt.Errorf("read source branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, fromRef.Hash())); err != nil {
		return fmt.Errorf("create branch ref: %w", err)
	}
	return nil
}

func commit(repo *git.Repository, branch string, content store.Content, author, message string, when time.Time, allowEmpty bool) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("checkout branch %s: %w", branch, err)
	}

	if err := writeContent(worktree.Filesystem.Root(), content); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	if when.IsZero() {
		when = time.Now()
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author:            signature(author, when),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func writeContent(root string, content store.Content) error {
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, contentFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", contentFile, err)
	}
	return nil
}

func readContentFromCommit(commitObj *object.Commit) (store.Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return store.Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return store.Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return store.Content{}, fmt.Errorf("read content bytes: %w", err)
	}
	var content store.Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return store.Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func tagCommit(repo *git.Repository, name string) (plumbing.Hash, error) {
	ref, err := repo.Tag(name)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if tag, err := repo.TagObject(ref.Hash()); err == nil {
		target, err := tag.Commit()
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return target.Hash, nil
	}
	return ref.Hash(), nil
}

func versionTag(version int64) string {
	return fmt.Sprintf("v%d", version)
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String(),
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(name string, when time.Time) *object.Signature {
	name = firstNonEmpty(name, "folio")
	return &object.Signature{
		Name:  name,
		Email: fmt.Sprintf("%s@folio.local", sanitizeEmail(name)),
		When:  when,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
