package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// SkipDir can be returned by a WalkFunc to skip the directory's children
var SkipDir = fs.SkipDir

// WalkFunc is called for every surviving entry. info is nil when the entry
// could not be stat'ed; err is non-nil for a failed stat or a failed listing
// of a directory that was already reported.
type WalkFunc func(path string, info os.FileInfo, err error) error

// Walker walks the filesystem top-down, pruning excluded entries before they
// are stat'ed or descended into
type Walker struct {
	matcher *Matcher
	logger  *zap.Logger
}

// NewWalker creates a new filesystem walker
func NewWalker(matcher *Matcher, logger *zap.Logger) *Walker {
	return &Walker{
		matcher: matcher,
		logger:  logger,
	}
}

// Walk visits root and its subtree in pre-order, children sorted by name.
// Symbolic links are reported, never followed.
func (w *Walker) Walk(root string, fn WalkFunc) error {
	info, err := os.Lstat(root)
	if err != nil {
		return fn(root, nil, err)
	}

	err = fn(root, info, nil)
	if errors.Is(err, SkipDir) {
		return nil
	}
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return nil
	}
	return w.walkDir(root, info, fn)
}

func (w *Walker) walkDir(dir string, dirInfo os.FileInfo, fn WalkFunc) error {
	// ReadDir returns the entries read so far together with the error
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		if err := fn(dir, dirInfo, readErr); err != nil && !errors.Is(err, SkipDir) {
			return err
		}
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if w.matcher != nil && w.matcher.IsExcluded(path) {
			w.logger.Debug("Skipping excluded path", zap.String("path", path))
			continue
		}

		info, err := os.Lstat(path)
		if err != nil {
			if err := fn(path, nil, err); err != nil && !errors.Is(err, SkipDir) {
				return err
			}
			continue
		}

		err = fn(path, info, nil)
		if errors.Is(err, SkipDir) {
			continue
		}
		if err != nil {
			return err
		}

		if info.IsDir() {
			if err := w.walkDir(path, info, fn); err != nil {
				return err
			}
		}
	}

	return nil
}
