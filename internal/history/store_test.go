package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pooow/syschange/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSig = Signature{Name: "Snapshot Script", Email: "snapshot@local"}

func textRecord(t *testing.T, path, content string) *models.FileRecord {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return &models.FileRecord{Path: path, Size: int64(len(content)), IsRegular: true, IsText: true}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), DirName), testSig, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestOpen_RequiresSignature(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), Signature{}, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), DirName)
	src := t.TempDir()

	s, err := Open(ctx, dir, testSig, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Archive(ctx, []*models.FileRecord{textRecord(t, filepath.Join(src, "a.conf"), "a\n")}, "before")
	require.NoError(t, err)

	reopened, err := Open(ctx, dir, testSig, zap.NewNop())
	require.NoError(t, err)
	n, err := reopened.Revisions()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchive_DiffLatest(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	src := t.TempDir()

	// Fewer than two revisions
	_, ok, err := s.DiffLatest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	changed := filepath.Join(src, "etc", "app.conf")
	removed := filepath.Join(src, "etc", "old.conf")
	added := filepath.Join(src, "etc", "new.conf")

	before := []*models.FileRecord{
		textRecord(t, changed, "a\nb\n"),
		textRecord(t, removed, "gone\n"),
		{Path: filepath.Join(src, "bin"), IsRegular: true, IsText: false},
	}
	res, err := s.Archive(ctx, before, "before")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Copied)
	assert.NotEmpty(t, res.Commit)

	_, ok, err = s.DiffLatest(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a single revision has nothing to compare")

	require.NoError(t, os.Remove(removed))
	after := []*models.FileRecord{
		textRecord(t, changed, "a\nc\n"),
		textRecord(t, added, "fresh\n"),
	}
	res, err = s.Archive(ctx, after, "after")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Changed)

	patch, ok, err := s.DiffLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, patch, "-b")
	assert.Contains(t, patch, "+c")
	assert.Contains(t, patch, "-gone")
	assert.Contains(t, patch, "+fresh")
	assert.Contains(t, patch, "new.conf")
	assert.Contains(t, patch, "old.conf")

	n, err := s.Revisions()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestArchive_UnchangedProducesEmptyPatch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	src := t.TempDir()

	records := []*models.FileRecord{textRecord(t, filepath.Join(src, "hosts"), "127.0.0.1 localhost\n")}

	_, err := s.Archive(ctx, records, "before")
	require.NoError(t, err)
	res, err := s.Archive(ctx, records, "after")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changed)

	patch, ok, err := s.DiffLatest(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, patch)
}

func TestArchive_SkipsUnreadableAndGitPaths(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	src := t.TempDir()

	records := []*models.FileRecord{
		textRecord(t, filepath.Join(src, "ok.txt"), "ok\n"),
		textRecord(t, filepath.Join(src, "repo", ".git", "config"), "[core]\n"),
		{Path: filepath.Join(src, "vanished.txt"), IsRegular: true, IsText: true},
	}

	res, err := s.Archive(ctx, records, "before")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)
	assert.Equal(t, 2, res.Skipped)
}

func TestWorktreePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/etc/passwd", "etc/passwd", true},
		{"/a/b/c.txt", "a/b/c.txt", true},
		{"/", "", false},
		{"/srv/.git/HEAD", "", false},
		{"/srv/.gitignore", "srv/.gitignore", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := worktreePath(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
