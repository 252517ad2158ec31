package models

import "time"

// Version is written into every report
const Version = "0.3.0"

// Snapshot suffixes
const (
	SuffixBefore = "before"
	SuffixAfter  = "after"
)

// Snapshot is the complete record set produced by one scan
type Snapshot struct {
	Suffix    string          `json:"suffix"`
	Roots     []string        `json:"roots"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Records   []*FileRecord   `json:"-"`
	Stats     *ScanStatistics `json:"statistics"`
}

// HashIndex returns path -> hash for every record with a computed hash
func (s *Snapshot) HashIndex() map[string]string {
	index := make(map[string]string)
	for _, rec := range s.Records {
		if v, ok := rec.Hash.Get(); ok {
			index[rec.Path] = v
		}
	}
	return index
}

// TextRecords returns the records classified as text, in snapshot order
func (s *Snapshot) TextRecords() []*FileRecord {
	var out []*FileRecord
	for _, rec := range s.Records {
		if rec.IsText {
			out = append(out, rec)
		}
	}
	return out
}

// ScanStatistics contains aggregate counters for one scan
type ScanStatistics struct {
	// Entries
	TotalFiles int   `json:"total_files"`
	TotalDirs  int   `json:"total_dirs"`
	OtherFiles int   `json:"other_files"`
	TextFiles  int   `json:"text_files"`
	TotalSize  int64 `json:"total_size"`

	// Hashing
	HashedInline int `json:"hashed_inline"`
	HashedPooled int `json:"hashed_pooled"`
	HashErrors   int `json:"hash_errors"`
	WorkersUsed  int `json:"workers_used"`

	// Errors
	AccessErrors int      `json:"access_errors"`
	ErrorPaths   []string `json:"error_paths,omitempty"`
	SkippedRoots []string `json:"skipped_roots,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Records returns the number of produced records (files, dirs and others)
func (s *ScanStatistics) Records() int {
	return s.TotalFiles + s.TotalDirs + s.OtherFiles
}
