package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pooow/syschange/internal/config"
	"github.com/pooow/syschange/internal/filesystem"
	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

// ProgressCallback is called to report scan progress
type ProgressCallback func(phase string, current, total int, message string)

// progressInterval is the number of entries between progress reports
const progressInterval = 1000

// maxErrorPaths bounds the paths kept in statistics; the counter is exact
const maxErrorPaths = 100

// Scanner is the snapshot engine: one sequential traversal per root with
// content hashing of text files
type Scanner struct {
	config           *config.Config
	logger           *zap.Logger
	matcher          *filesystem.Matcher
	classifier       *filesystem.Classifier
	walker           *filesystem.Walker
	owners           *filesystem.OwnerResolver
	progressCallback ProgressCallback
}

// NewScanner creates a new scanner instance. extraExcludes are added to the
// configured exclusion rules.
func NewScanner(cfg *config.Config, logger *zap.Logger, extraExcludes ...string) (*Scanner, error) {
	matcher, err := filesystem.NewMatcher(cfg.ExclusionPatterns(extraExcludes...))
	if err != nil {
		return nil, err
	}

	classifier := filesystem.NewClassifier(
		cfg.BinaryExtensions,
		cfg.TextExtensions,
		cfg.MaxTextSize(),
		cfg.Scan.SampleSize,
	)

	return &Scanner{
		config:     cfg,
		logger:     logger,
		matcher:    matcher,
		classifier: classifier,
		walker:     filesystem.NewWalker(matcher, logger),
		owners:     filesystem.NewOwnerResolver(),
	}, nil
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(cb ProgressCallback) {
	s.progressCallback = cb
}

// Matcher returns the exclusion rules in effect
func (s *Scanner) Matcher() *filesystem.Matcher {
	return s.matcher
}

// reportProgress calls the progress callback if set
func (s *Scanner) reportProgress(phase string, current, total int, message string) {
	if s.progressCallback != nil {
		s.progressCallback(phase, current, total, message)
	}
}

// scanState is owned by the traversal goroutine
type scanState struct {
	snap   *models.Snapshot
	stats  *models.ScanStatistics
	hasher *HashScheduler
	seen   map[string]bool
}

// Scan traverses every configured root and returns the snapshot. It blocks
// until all hashes are computed. Cancelling ctx stops the traversal and
// returns the context error.
func (s *Scanner) Scan(ctx context.Context, suffix string) (*models.Snapshot, error) {
	roots := s.config.Scan.DirsToScan
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no directories to scan", models.ErrConfiguration)
	}

	s.logger.Info("Starting scan",
		zap.String("suffix", suffix),
		zap.Strings("roots", roots),
		zap.Int("exclude_rules", len(s.matcher.Rules())))

	st := &scanState{
		snap: &models.Snapshot{
			Suffix:    suffix,
			StartTime: time.Now(),
		},
		stats: &models.ScanStatistics{},
		seen:  make(map[string]bool),
	}
	st.snap.Stats = st.stats

	var hasher *HashScheduler
	if s.config.Scan.CollectHashes {
		hasher = NewHashScheduler(s.config.Workers(), s.config.ParallelThreshold(), s.logger)
		hasher.Start()
	}
	st.hasher = hasher

	for i, root := range roots {
		s.reportProgress("scanning", i, len(roots), fmt.Sprintf("Scanning %s", root))
		if err := s.scanRoot(ctx, st, root); err != nil {
			if hasher != nil {
				hasher.Wait()
			}
			return nil, err
		}
	}

	if hasher != nil {
		s.reportProgress("hashing", len(roots), len(roots), "Waiting for hash workers...")
		hs := hasher.Wait()
		st.stats.HashedInline = hs.Inline
		st.stats.HashedPooled = hs.Pooled
		st.stats.HashErrors = hs.Failed
		st.stats.WorkersUsed = hs.Workers
	}

	st.snap.EndTime = time.Now()
	st.stats.Duration = st.snap.EndTime.Sub(st.snap.StartTime)

	if st.stats.AccessErrors > 0 || st.stats.HashErrors > 0 {
		s.logger.Warn("Scan finished with errors",
			zap.Int("access_errors", st.stats.AccessErrors),
			zap.Int("hash_errors", st.stats.HashErrors),
			zap.Strings("sample_paths", st.stats.ErrorPaths))
	}

	s.logger.Info("Scan completed",
		zap.Duration("duration", st.stats.Duration),
		zap.Int("records", len(st.snap.Records)),
		zap.Int("text_files", st.stats.TextFiles),
		zap.Int("hashed_inline", st.stats.HashedInline),
		zap.Int("hashed_pooled", st.stats.HashedPooled))

	return st.snap, nil
}

// scanRoot walks one root. Unusable roots are logged and skipped.
func (s *Scanner) scanRoot(ctx context.Context, st *scanState, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		s.skipRoot(st, root, "invalid path", err)
		return nil
	}
	root = abs

	if s.matcher.ExcludesTree(root) {
		s.skipRoot(st, root, "root is excluded", nil)
		return nil
	}

	info, err := os.Lstat(root)
	if err != nil {
		s.skipRoot(st, root, "root not accessible", err)
		return nil
	}
	if !info.IsDir() {
		s.skipRoot(st, root, "root is not a directory", nil)
		return nil
	}

	st.snap.Roots = append(st.snap.Roots, root)

	return s.walker.Walk(root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.accessError(st, path, err)
			return nil
		}

		if st.seen[path] {
			// Overlapping roots: this subtree was already recorded
			if info.IsDir() {
				return filesystem.SkipDir
			}
			return nil
		}
		st.seen[path] = true

		s.record(st, path, info)

		if n := len(st.snap.Records); n%progressInterval == 0 {
			s.reportProgress("scanning", n, 0, path)
		}
		return nil
	})
}

// record builds the FileRecord for one entry and dispatches hashing
func (s *Scanner) record(st *scanState, path string, info os.FileInfo) {
	mode := info.Mode()
	owner, group := s.owners.Owner(info)

	rec := &models.FileRecord{
		Path:        path,
		ModTime:     info.ModTime().Unix(),
		ChangeTime:  filesystem.ChangeTime(info).Unix(),
		Owner:       owner,
		Group:       group,
		Permissions: filesystem.FormatMode(mode),
		Size:        info.Size(),
		IsDir:       info.IsDir(),
		IsRegular:   mode.IsRegular(),
	}
	st.snap.Records = append(st.snap.Records, rec)

	switch {
	case rec.IsDir:
		st.stats.TotalDirs++
	case rec.IsRegular:
		st.stats.TotalFiles++
		st.stats.TotalSize += rec.Size

		verdict := s.classifier.ClassifyFile(path, rec.Size)
		if !verdict.IsText {
			return
		}
		rec.IsText = true
		st.stats.TextFiles++
		if st.hasher != nil {
			st.hasher.Submit(rec)
		}
	default:
		st.stats.OtherFiles++
	}
}

func (s *Scanner) accessError(st *scanState, path string, err error) {
	st.stats.AccessErrors++
	if len(st.stats.ErrorPaths) < maxErrorPaths {
		st.stats.ErrorPaths = append(st.stats.ErrorPaths, path)
	}
	s.logger.Warn("Error accessing path",
		zap.String("path", path),
		zap.Error(fmt.Errorf("%w: %v", models.ErrScanAccess, err)))
}

func (s *Scanner) skipRoot(st *scanState, root, reason string, err error) {
	st.stats.SkippedRoots = append(st.stats.SkippedRoots, root)
	fields := []zap.Field{zap.String("root", root), zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Warn("Skipping scan root", fields...)
}
