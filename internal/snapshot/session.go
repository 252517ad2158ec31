package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pooow/syschange/pkg/models"
	"gopkg.in/yaml.v3"
)

// SessionFile holds the persisted session state
const SessionFile = "session.yaml"

// State is the position of a session in its lifecycle
type State string

const (
	StateNoBaseline       State = "no_baseline"
	StateBaselineCaptured State = "baseline_captured"
	StateCompared         State = "compared"
)

// Session tracks one before/after comparison
type Session struct {
	Name       string     `yaml:"name"`
	State      State      `yaml:"state"`
	Version    string     `yaml:"version"`
	Roots      []string   `yaml:"roots,omitempty"`
	BaselineAt *time.Time `yaml:"baseline_at,omitempty"`
	ComparedAt *time.Time `yaml:"compared_at,omitempty"`

	dir string
}

// OpenSession loads the session state from dir, or returns a fresh session
// in StateNoBaseline if none was saved.
func OpenSession(dir, name string) (*Session, error) {
	s := &Session{Name: name, State: StateNoBaseline, Version: models.Version, dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, SessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrCorruptSnapshot, SessionFile, err)
	}
	s.dir = dir
	s.Name = name

	switch s.State {
	case StateNoBaseline, StateBaselineCaptured, StateCompared:
	default:
		return nil, fmt.Errorf("%w: unknown session state %q", models.ErrCorruptSnapshot, s.State)
	}

	return s, nil
}

// Dir returns the session directory
func (s *Session) Dir() string {
	return s.dir
}

// Save writes the session state to session.yaml
func (s *Session) Save() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, SessionFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// MarkBaseline records a completed "before" scan. It resets any previous
// comparison.
func (s *Session) MarkBaseline(roots []string, at time.Time) error {
	s.State = StateBaselineCaptured
	s.Version = models.Version
	s.Roots = roots
	s.BaselineAt = &at
	s.ComparedAt = nil
	return s.Save()
}

// RequireBaseline fails unless a baseline was captured and its metadata file
// is still present
func (s *Session) RequireBaseline(store *Store) error {
	if s.State == StateNoBaseline {
		return fmt.Errorf("%w: session %q has no baseline, run 'before %s' first",
			models.ErrCorruptSnapshot, s.Name, s.Name)
	}
	if !store.Exists(models.SuffixBefore) {
		return fmt.Errorf("%w: %s missing in %s, run 'before %s' first",
			models.ErrCorruptSnapshot, MetadataFile(models.SuffixBefore), s.dir, s.Name)
	}
	return nil
}

// MarkCompared records a completed "after" scan and diff
func (s *Session) MarkCompared(at time.Time) error {
	if s.State == StateNoBaseline {
		return fmt.Errorf("%w: cannot compare without baseline", models.ErrCorruptSnapshot)
	}
	s.State = StateCompared
	s.ComparedAt = &at
	return s.Save()
}
