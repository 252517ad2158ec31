package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

func TestSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zap.NewNop())

	s, err := OpenSession(dir, "upgrade")
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if s.State != StateNoBaseline {
		t.Fatalf("New session state = %s", s.State)
	}

	if err := s.RequireBaseline(store); !errors.Is(err, models.ErrCorruptSnapshot) {
		t.Errorf("RequireBaseline() without baseline = %v, want ErrCorruptSnapshot", err)
	}

	if _, err := store.Save(testSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.MarkBaseline([]string{"/etc"}, time.Now()); err != nil {
		t.Fatalf("MarkBaseline() error = %v", err)
	}
	if err := s.RequireBaseline(store); err != nil {
		t.Errorf("RequireBaseline() = %v", err)
	}

	if err := s.MarkCompared(time.Now()); err != nil {
		t.Fatalf("MarkCompared() error = %v", err)
	}

	reopened, err := OpenSession(dir, "upgrade")
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if reopened.State != StateCompared {
		t.Errorf("Persisted state = %s, want %s", reopened.State, StateCompared)
	}
	if reopened.ComparedAt == nil || reopened.BaselineAt == nil {
		t.Error("Timestamps were not persisted")
	}

	// A new baseline resets the comparison
	if err := reopened.MarkBaseline([]string{"/etc"}, time.Now()); err != nil {
		t.Fatalf("MarkBaseline() error = %v", err)
	}
	if reopened.State != StateBaselineCaptured || reopened.ComparedAt != nil {
		t.Errorf("Baseline did not reset session: %+v", reopened)
	}
}

func TestSessionBaselineFileRemoved(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zap.NewNop())

	s, _ := OpenSession(dir, "s1")
	if err := s.MarkBaseline(nil, time.Now()); err != nil {
		t.Fatalf("MarkBaseline() error = %v", err)
	}

	// State says captured but fs_before.txt is gone
	err := s.RequireBaseline(store)
	if !errors.Is(err, models.ErrCorruptSnapshot) {
		t.Errorf("RequireBaseline() = %v, want ErrCorruptSnapshot", err)
	}
}

func TestOpenSessionCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Invalid YAML", "state: [unterminated"},
		{"Unknown state", "state: exploded\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, SessionFile), []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write session: %v", err)
			}
			if _, err := OpenSession(dir, "x"); !errors.Is(err, models.ErrCorruptSnapshot) {
				t.Errorf("OpenSession() = %v, want ErrCorruptSnapshot", err)
			}
		})
	}
}
