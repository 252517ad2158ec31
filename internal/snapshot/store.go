package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

// metadataFields is the number of columns in a metadata line
const metadataFields = 7

// MetadataFile returns the metadata file name for a suffix
func MetadataFile(suffix string) string {
	return "fs_" + suffix + ".txt"
}

// HashesFile returns the hash file name for a suffix
func HashesFile(suffix string) string {
	return "fs_hashes_" + suffix + ".txt"
}

// SaveResult describes the files written by Save
type SaveResult struct {
	MetadataPath string
	HashesPath   string
	Records      int
	Hashes       int
}

// Store persists snapshots as plain text files in a session directory
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a store rooted at dir
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Dir returns the session directory
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether the metadata file for suffix is present
func (s *Store) Exists(suffix string) bool {
	_, err := os.Stat(filepath.Join(s.dir, MetadataFile(suffix)))
	return err == nil
}

// Save writes fs_<suffix>.txt with one line per record and
// fs_hashes_<suffix>.txt with one line per computed hash. Existing files are
// truncated.
func (s *Store) Save(snap *models.Snapshot) (*SaveResult, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	res := &SaveResult{
		MetadataPath: filepath.Join(s.dir, MetadataFile(snap.Suffix)),
		HashesPath:   filepath.Join(s.dir, HashesFile(snap.Suffix)),
	}

	err := writeLines(res.MetadataPath, func(w *bufio.Writer) error {
		for _, rec := range snap.Records {
			if _, err := fmt.Fprintf(w, "%s %d %d %s %s %s %d\n",
				rec.Path, rec.ModTime, rec.ChangeTime, rec.Owner, rec.Group, rec.Permissions, rec.Size); err != nil {
				return err
			}
			res.Records++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	err = writeLines(res.HashesPath, func(w *bufio.Writer) error {
		for _, rec := range snap.Records {
			sum, ok := rec.Hash.Get()
			if !ok {
				continue
			}
			if _, err := fmt.Fprintf(w, "%s %s\n", rec.Path, sum); err != nil {
				return err
			}
			res.Hashes++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write hashes: %w", err)
	}

	s.logger.Info("Snapshot saved",
		zap.String("metadata", res.MetadataPath),
		zap.String("hashes", res.HashesPath),
		zap.Int("records", res.Records),
		zap.Int("hashes_written", res.Hashes))

	return res, nil
}

func writeLines(path string, fn func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// LoadMetadata reads fs_<suffix>.txt back into records. Columns are taken
// from the right so paths containing spaces survive.
func (s *Store) LoadMetadata(suffix string) ([]*models.FileRecord, error) {
	var records []*models.FileRecord

	err := s.readLines(MetadataFile(suffix), func(n int, line string) error {
		rec, err := parseMetadataLine(line)
		if err != nil {
			return fmt.Errorf("%w: %s line %d: %v", models.ErrCorruptSnapshot, MetadataFile(suffix), n, err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LoadHashes reads fs_hashes_<suffix>.txt back into path -> hash
func (s *Store) LoadHashes(suffix string) (map[string]string, error) {
	hashes := make(map[string]string)

	err := s.readLines(HashesFile(suffix), func(n int, line string) error {
		i := strings.LastIndexByte(line, ' ')
		if i <= 0 || i == len(line)-1 {
			return fmt.Errorf("%w: %s line %d: malformed", models.ErrCorruptSnapshot, HashesFile(suffix), n)
		}
		hashes[line[:i]] = line[i+1:]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *Store) readLines(name string, fn func(n int, line string) error) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s not found", models.ErrCorruptSnapshot, name)
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseMetadataLine(line string) (*models.FileRecord, error) {
	// Split off the six fixed trailing columns
	fields := make([]string, metadataFields)
	rest := line
	for i := metadataFields - 1; i > 0; i-- {
		j := strings.LastIndexByte(rest, ' ')
		if j < 0 {
			return nil, fmt.Errorf("expected %d fields", metadataFields)
		}
		fields[i] = rest[j+1:]
		rest = rest[:j]
	}
	fields[0] = rest
	if fields[0] == "" {
		return nil, errors.New("empty path")
	}

	mtime, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid mtime %q", fields[1])
	}
	ctime, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ctime %q", fields[2])
	}
	size, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid size %q", fields[6])
	}

	perms := fields[5]
	return &models.FileRecord{
		Path:        fields[0],
		ModTime:     mtime,
		ChangeTime:  ctime,
		Owner:       fields[3],
		Group:       fields[4],
		Permissions: perms,
		Size:        size,
		IsDir:       strings.HasPrefix(perms, "d"),
		IsRegular:   strings.HasPrefix(perms, "-"),
	}, nil
}
