// Package diff compares the before/after generations of every report section.
package diff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

// ContextLines is the number of unchanged lines around each hunk
const ContextLines = 3

// HistorySource provides the content diff of the two most recent archived runs
type HistorySource interface {
	DiffLatest(ctx context.Context) (patch string, ok bool, err error)
}

// SectionFile returns the file name of one generation of a section
func SectionFile(section, suffix string) string {
	return section + "_" + suffix + ".txt"
}

// Engine computes section diffs from files in a session directory
type Engine struct {
	dir     string
	history HistorySource
	logger  *zap.Logger
}

// NewEngine creates an engine. history may be nil, in which case fs_diff is
// reported as not collected.
func NewEngine(dir string, history HistorySource, logger *zap.Logger) *Engine {
	return &Engine{dir: dir, history: history, logger: logger}
}

// Report diffs the given sections and assembles a ChangeReport
func (e *Engine) Report(ctx context.Context, session string, sections []string) (*models.ChangeReport, error) {
	diffs, err := e.DiffSections(ctx, sections)
	if err != nil {
		return nil, err
	}
	return &models.ChangeReport{
		Version:   models.Version,
		Session:   session,
		Generated: time.Now(),
		Sections:  diffs,
	}, nil
}

// DiffSections diffs every named section in order
func (e *Engine) DiffSections(ctx context.Context, names []string) ([]*models.SectionDiff, error) {
	out := make([]*models.SectionDiff, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := e.DiffSection(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// DiffSection compares <name>_before.txt with <name>_after.txt, or asks the
// history store for fs_diff
func (e *Engine) DiffSection(ctx context.Context, name string) (*models.SectionDiff, error) {
	if !models.IsSection(name) {
		return nil, fmt.Errorf("%w: unknown section %q", models.ErrConfiguration, name)
	}

	if name == models.SectionFSDiff {
		return e.diffHistory(ctx), nil
	}

	beforeName := SectionFile(name, models.SuffixBefore)
	afterName := SectionFile(name, models.SuffixAfter)

	before, err := e.readSection(beforeName)
	if err != nil {
		return nil, err
	}
	after, err := e.readSection(afterName)
	if err != nil {
		return nil, err
	}
	if before == nil || after == nil {
		e.logger.Debug("Section not collected", zap.String("section", name))
		return &models.SectionDiff{Name: name, Status: models.StatusMissing}, nil
	}

	return DiffBlobs(name, before, after, beforeName, afterName), nil
}

func (e *Engine) diffHistory(ctx context.Context) *models.SectionDiff {
	missing := &models.SectionDiff{Name: models.SectionFSDiff, Status: models.StatusMissing}
	if e.history == nil {
		return missing
	}

	patch, ok, err := e.history.DiffLatest(ctx)
	if err != nil {
		e.logger.Warn("History diff unavailable", zap.Error(err))
		return missing
	}
	if !ok {
		return missing
	}
	if strings.TrimSpace(patch) == "" {
		return &models.SectionDiff{Name: models.SectionFSDiff, Status: models.StatusUnchanged}
	}
	return &models.SectionDiff{Name: models.SectionFSDiff, Status: models.StatusChanged, Text: patch}
}

// readSection returns nil data for an absent file
func (e *Engine) readSection(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(e.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// DiffBlobs compares two generations of a section held in memory
func DiffBlobs(name string, before, after []byte, from, to string) *models.SectionDiff {
	if bytes.Equal(before, after) {
		return &models.SectionDiff{Name: name, Status: models.StatusUnchanged}
	}

	text := Unified(splitLines(before), splitLines(after), from, to)
	if text == "" {
		return &models.SectionDiff{Name: name, Status: models.StatusUnchanged}
	}
	return &models.SectionDiff{Name: name, Status: models.StatusChanged, Text: text}
}

// Unified renders a unified diff of two line slices. Lines may omit their
// trailing newline.
func Unified(before, after []string, from, to string) string {
	ud := difflib.UnifiedDiff{
		A:        withNewlines(before),
		B:        withNewlines(after),
		FromFile: from,
		ToFile:   to,
		Context:  ContextLines,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		// Writes go to an in-memory buffer
		return ""
	}
	return text
}

// splitLines splits on newlines without producing a trailing empty line.
// Invalid UTF-8 is replaced so reports stay valid text.
func splitLines(data []byte) []string {
	s := strings.ToValidUTF8(string(data), "�")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		if len(data) == 0 {
			return nil
		}
		return []string{""}
	}
	return strings.Split(s, "\n")
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSuffix(l, "\n") + "\n"
	}
	return out
}
