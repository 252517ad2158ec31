package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func buildTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func collect(t *testing.T, w *Walker, root string) []string {
	t.Helper()
	var paths []string
	err := w.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			t.Errorf("Unexpected error at %s: %v", path, err)
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	return paths
}

func TestWalkerOrder(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"b/z.txt": "z",
		"b/a.txt": "a",
		"a.txt":   "a",
		"c/d/e":   "e",
	})

	w := NewWalker(nil, zap.NewNop())
	got := collect(t, w, root)

	want := []string{".", "a.txt", "b", "b/a.txt", "b/z.txt", "c", "c/d", "c/d/e"}
	if len(got) != len(want) {
		t.Fatalf("Walk visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkerPrunesExcluded(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"keep/file":        "x",
		"skip/file":        "x",
		"skip/deep/file":   "x",
		"cache/tmp.swp":    "x",
		"cache/notes.txt":  "x",
		"skipped-not/file": "x",
	})

	m, err := NewMatcher([]string{filepath.Join(root, "skip"), filepath.Join(root, "cache", "*.swp")})
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	w := NewWalker(m, zap.NewNop())
	got := collect(t, w, root)

	seen := make(map[string]bool)
	for _, p := range got {
		seen[p] = true
	}

	for _, p := range []string{"skip", "skip/file", "skip/deep", "skip/deep/file", "cache/tmp.swp"} {
		if seen[p] {
			t.Errorf("Excluded path %q was visited", p)
		}
	}
	for _, p := range []string{"keep", "keep/file", "cache", "cache/notes.txt", "skipped-not", "skipped-not/file"} {
		if !seen[p] {
			t.Errorf("Path %q was not visited", p)
		}
	}
}

func TestWalkerDoesNotFollowSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	buildTree(t, outside, map[string]string{"secret": "x"})

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("Symlinks not supported: %v", err)
	}

	w := NewWalker(nil, zap.NewNop())

	var linkInfo os.FileInfo
	var paths []string
	err := w.Walk(root, func(path string, info os.FileInfo, err error) error {
		rel, _ := filepath.Rel(root, path)
		paths = append(paths, rel)
		if rel == "link" {
			linkInfo = info
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if len(paths) != 2 {
		t.Errorf("Expected root and link only, got %v", paths)
	}
	if linkInfo == nil || linkInfo.Mode()&os.ModeSymlink == 0 {
		t.Errorf("Link should be reported as a symlink")
	}
}

func TestWalkerSkipDir(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{"a/b": "x", "c": "x"})

	w := NewWalker(nil, zap.NewNop())
	var paths []string
	err := w.Walk(root, func(path string, info os.FileInfo, err error) error {
		rel, _ := filepath.Rel(root, path)
		paths = append(paths, rel)
		if rel == "a" {
			return SkipDir
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	for _, p := range paths {
		if p == "a/b" {
			t.Error("Children of skipped dir were visited")
		}
	}
	if len(paths) != 3 {
		t.Errorf("Expected 3 entries, got %v", paths)
	}
}

func TestWalkerMissingRoot(t *testing.T) {
	w := NewWalker(nil, zap.NewNop())
	root := filepath.Join(t.TempDir(), "missing")

	called := false
	err := w.Walk(root, func(path string, info os.FileInfo, err error) error {
		called = true
		if info != nil || err == nil {
			t.Errorf("Expected stat error for missing root, got info=%v err=%v", info, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if !called {
		t.Error("Callback was not called for missing root")
	}
}

func TestWalkerVanishedEntry(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"a.txt": "a",
		"b.txt": "b",
		"c.txt": "c",
	})

	w := NewWalker(nil, zap.NewNop())
	var visited []string
	var failed []string
	err := w.Walk(root, func(path string, info os.FileInfo, err error) error {
		rel, _ := filepath.Rel(root, path)
		if err != nil {
			if info != nil {
				t.Errorf("Expected nil info for failed stat of %s", rel)
			}
			if !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Unexpected error at %s: %v", rel, err)
			}
			failed = append(failed, rel)
			return nil
		}
		visited = append(visited, rel)
		// b.txt is already listed but not yet stat'ed
		if rel == "a.txt" {
			if err := os.Remove(filepath.Join(root, "b.txt")); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if len(failed) != 1 || failed[0] != "b.txt" {
		t.Errorf("Failed entries = %v, want [b.txt]", failed)
	}
	if len(visited) != 3 || visited[2] != "c.txt" {
		t.Errorf("Visited = %v, want walk to continue past the vanished entry", visited)
	}
}

func TestWalkerUnreadableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any directory")
	}
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"locked/secret.txt": "s",
		"open/ok.txt":       "o",
	})
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	w := NewWalker(nil, zap.NewNop())
	var visited []string
	var failedInfo os.FileInfo
	failures := 0
	err := w.Walk(root, func(path string, info os.FileInfo, err error) error {
		rel, _ := filepath.Rel(root, path)
		if err != nil {
			if rel != "locked" || !errors.Is(err, fs.ErrPermission) {
				t.Errorf("Unexpected error at %s: %v", rel, err)
			}
			failures++
			failedInfo = info
			return nil
		}
		visited = append(visited, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if failures != 1 {
		t.Errorf("Expected 1 failure, got %d", failures)
	}
	if failedInfo == nil || !failedInfo.IsDir() {
		t.Error("Listing failure should carry the directory's info")
	}
	want := []string{".", "locked", "open", "open/ok.txt"}
	if len(visited) != len(want) {
		t.Fatalf("Visited = %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("Entry %d = %q, want %q", i, visited[i], want[i])
		}
	}
}

func TestOwnerResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}

	r := NewOwnerResolver()
	owner, group := r.Owner(info)
	if owner == "" || group == "" {
		t.Errorf("Owner() = %q, %q; want non-empty", owner, group)
	}

	// Cached lookup returns the same names
	owner2, group2 := r.Owner(info)
	if owner2 != owner || group2 != group {
		t.Errorf("Cached Owner() = %q, %q; want %q, %q", owner2, group2, owner, group)
	}
}
