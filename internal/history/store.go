// Package history keeps every text file seen by a scan in a git repository,
// one commit per run, so content changes can be shown as a patch.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

// DirName is the repository directory inside a session
const DirName = "fs_git"

const dotGit = ".git"

// Signature identifies the author of history commits
type Signature struct {
	Name  string
	Email string
}

// ArchiveResult summarizes one Archive call
type ArchiveResult struct {
	Copied  int
	Skipped int
	Changed int
	Commit  string
}

// Store is a git repository mirroring text files under their absolute paths
type Store struct {
	dir    string
	fs     billy.Filesystem
	repo   *git.Repository
	wt     *git.Worktree
	sig    Signature
	logger *zap.Logger
}

// Open opens the repository in dir, initializing it on first use
func Open(ctx context.Context, dir string, sig Signature, logger *zap.Logger) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sig.Name == "" || sig.Email == "" {
		return nil, fmt.Errorf("%w: history author name and email are required", models.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %v", models.ErrExternalTool, dir, err)
	}

	worktreeFS := osfs.New(dir)
	dotGitFS, err := worktreeFS.Chroot(dotGit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to access .git directory: %v", models.ErrExternalTool, err)
	}
	storage := filesystem.NewStorage(dotGitFS, cache.NewObjectLRUDefault())

	repo, err := git.Open(storage, worktreeFS)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logger.Debug("Initializing history repository", zap.String("dir", dir))
		repo, err = git.Init(storage, worktreeFS)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open repository %s: %v", models.ErrExternalTool, dir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get worktree: %v", models.ErrExternalTool, err)
	}

	return &Store{
		dir:    dir,
		fs:     worktreeFS,
		repo:   repo,
		wt:     wt,
		sig:    sig,
		logger: logger,
	}, nil
}

// Dir returns the repository directory
func (s *Store) Dir() string {
	return s.dir
}

// Archive replaces the worktree with copies of the text records and commits
// the result as "Snapshot (<mode>)".
func (s *Store) Archive(ctx context.Context, records []*models.FileRecord, mode string) (*ArchiveResult, error) {
	if err := s.clearWorktree(); err != nil {
		return nil, err
	}

	res := &ArchiveResult{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !rec.IsText || !rec.IsRegular {
			continue
		}

		dst, ok := worktreePath(rec.Path)
		if !ok {
			res.Skipped++
			continue
		}
		if err := s.copyIn(rec.Path, dst); err != nil {
			s.logger.Warn("Failed to copy file into history", zap.String("path", rec.Path), zap.Error(err))
			res.Skipped++
			continue
		}
		res.Copied++
	}

	if err := s.wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("%w: failed to stage files: %v", models.ErrExternalTool, err)
	}

	status, err := s.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get worktree status: %v", models.ErrExternalTool, err)
	}

	// Stage removals left unstaged by the add
	removed := false
	for name, fs := range status {
		if fs.Worktree == git.Deleted {
			if _, err := s.wt.Remove(name); err != nil {
				return nil, fmt.Errorf("%w: failed to stage removal of %s: %v", models.ErrExternalTool, name, err)
			}
			removed = true
		}
	}
	if removed {
		if status, err = s.wt.Status(); err != nil {
			return nil, fmt.Errorf("%w: failed to get worktree status: %v", models.ErrExternalTool, err)
		}
	}

	for _, fs := range status {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			res.Changed++
		}
	}

	now := time.Now()
	who := &object.Signature{Name: s.sig.Name, Email: s.sig.Email, When: now}
	hash, err := s.wt.Commit(fmt.Sprintf("Snapshot (%s)", mode), &git.CommitOptions{
		Author:            who,
		Committer:         who,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to commit: %v", models.ErrExternalTool, err)
	}
	res.Commit = hash.String()

	s.logger.Info("History updated",
		zap.String("mode", mode),
		zap.Int("copied", res.Copied),
		zap.Int("skipped", res.Skipped),
		zap.Int("changed", res.Changed),
		zap.String("commit", res.Commit))

	return res, nil
}

// DiffLatest returns the patch between the two most recent revisions. ok is
// false when fewer than two revisions exist.
func (s *Store) DiffLatest(ctx context.Context) (patch string, ok bool, err error) {
	ref, err := s.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: failed to resolve HEAD: %v", models.ErrExternalTool, err)
	}

	head, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to read HEAD commit: %v", models.ErrExternalTool, err)
	}
	if head.NumParents() == 0 {
		return "", false, nil
	}

	parent, err := head.Parent(0)
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to read HEAD~1: %v", models.ErrExternalTool, err)
	}

	p, err := parent.PatchContext(ctx, head)
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to compute patch: %v", models.ErrExternalTool, err)
	}
	return p.String(), true, nil
}

// Revisions returns the number of commits reachable from HEAD
func (s *Store) Revisions() (int, error) {
	ref, err := s.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", models.ErrExternalTool, err)
	}

	iter, err := s.repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrExternalTool, err)
	}
	defer iter.Close()

	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	return n, err
}

// clearWorktree removes everything but .git so deleted files show up as deletions
func (s *Store) clearWorktree() error {
	entries, err := s.fs.ReadDir(".")
	if err != nil {
		return fmt.Errorf("%w: failed to list worktree: %v", models.ErrExternalTool, err)
	}
	for _, e := range entries {
		if e.Name() == dotGit {
			continue
		}
		if err := util.RemoveAll(s.fs, e.Name()); err != nil {
			return fmt.Errorf("%w: failed to clear %s: %v", models.ErrExternalTool, e.Name(), err)
		}
	}
	return nil
}

func (s *Store) copyIn(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := s.fs.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := s.fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// worktreePath maps an absolute path to its location in the worktree:
// /etc/passwd -> etc/passwd. Paths with a .git component cannot be stored.
func worktreePath(abs string) (string, bool) {
	rel := strings.TrimPrefix(filepath.ToSlash(abs), "/")
	if rel == "" {
		return "", false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == dotGit {
			return "", false
		}
	}
	return rel, true
}
