// Package history keeps the revisions of every Bishop's Charge in a git
// repository per charge, one commit per saved change.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const contentFile = "charge.json"

var ErrRevisionNotFound = errors.New("revision not found")

// Content is the versioned part of a charge.
type Content struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsActive bool   `json:"isActive"`
}

type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Change struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type Service struct {
	baseDir string
	now     func() time.Time

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records content as the newest revision of the charge, creating the
// repository on first use. Content equal to the newest revision is not
// committed again; the existing head is returned with changed=false.
func (s *Service) Commit(chargeID string, content Content, author, message string) (rev Revision, changed bool, err error) {
	lock := s.chargeLock(chargeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(chargeID)
	if err != nil {
		return Revision{}, false, err
	}

	if head, err := headCommit(repo); err == nil {
		current, err := readContent(head)
		if err != nil {
			return Revision{}, false, err
		}
		if len(Diff(current, content)) == 0 {
			return toRevision(head), false, nil
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Revision{}, false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return Revision{}, false, fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.repoPath(chargeID), contentFile), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Revision{}, false, fmt.Errorf("git add content: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@users.diocese.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit content: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// History lists revisions newest first. A charge that was never committed
// has an empty history.
func (s *Service) History(chargeID string, limit int) ([]Revision, error) {
	lock := s.chargeLock(chargeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(chargeID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
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

// Get returns the revision named by a full or abbreviated hash and the
// charge content it recorded.
func (s *Service) Get(chargeID, hash string) (Revision, Content, error) {
	lock := s.chargeLock(chargeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(chargeID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Revision{}, Content{}, ErrRevisionNotFound
	}
	if err != nil {
		return Revision{}, Content{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Revision{}, Content{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return Revision{}, Content{}, ErrRevisionNotFound
	}
	if err != nil {
		return Revision{}, Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	content, err := readContent(commitObj)
	if err != nil {
		return Revision{}, Content{}, err
	}
	return toRevision(commitObj), content, nil
}

// Remove deletes the repository of a deleted charge.
func (s *Service) Remove(chargeID string) error {
	lock := s.chargeLock(chargeID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(chargeID)); err != nil {
		return fmt.Errorf("remove history for %s: %w", chargeID, err)
	}
	return nil
}

// Diff lists the fields that differ between two revisions.
func Diff(from, to Content) []Change {
	changes := make([]Change, 0)
	if from.Title != to.Title {
		changes = append(changes, Change{Field: "title", Before: from.Title, After: to.Title})
	}
	if from.Content != to.Content {
		changes = append(changes, Change{Field: "content", Before: from.Content, After: to.Content})
	}
	if from.IsActive != to.IsActive {
		changes = append(changes, Change{
			Field:  "isActive",
			Before: fmt.Sprint(from.IsActive),
			After:  fmt.Sprint(to.IsActive),
		})
	}
	return changes
}

func (s *Service) repoPath(chargeID string) string {
	return filepath.Join(s.baseDir, filepath.Base(chargeID))
}

func (s *Service) chargeLock(chargeID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[chargeID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[chargeID] = lock
	return lock
}

func (s *Service) openOrInit(chargeID string) (*git.Repository, error) {
	path := s.repoPath(chargeID)
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
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readContent(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	raw, err := file.Contents()
	if err != nil {
		return Content{}, fmt.Errorf("read %s: %w", contentFile, err)
	}
	var content Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
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
		return "editor"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
	}
	return *resolved, nil
}
