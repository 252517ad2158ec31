package models

import "time"

// Section names. The list is fixed; sections are never discovered by globbing.
const (
	SectionPackages  = "packages"
	SectionProcesses = "processes"
	SectionServices  = "services"
	SectionPorts     = "ports"
	SectionPasswd    = "passwd"
	SectionGroup     = "group"
	SectionCron      = "cron"
	SectionFS        = "fs"
	SectionFSHashes  = "fs_hashes"
	SectionLogs      = "logs"
	SectionFSDiff    = "fs_diff"
)

// AllSections lists every section in report order
var AllSections = []string{
	SectionPackages,
	SectionProcesses,
	SectionServices,
	SectionPorts,
	SectionPasswd,
	SectionGroup,
	SectionCron,
	SectionFS,
	SectionFSHashes,
	SectionLogs,
	SectionFSDiff,
}

// IsSection reports whether name is a known section
func IsSection(name string) bool {
	for _, s := range AllSections {
		if s == name {
			return true
		}
	}
	return false
}

// Markers used in reports
const (
	NoChangesMarker    = "No changes detected."
	NotCollectedMarker = "Not collected."
)

// DiffStatus is the outcome of comparing one section
type DiffStatus string

const (
	StatusChanged   DiffStatus = "changed"
	StatusUnchanged DiffStatus = "unchanged"
	StatusMissing   DiffStatus = "missing"
)

// SectionDiff is the comparison result for one section
type SectionDiff struct {
	Name   string     `json:"name"`
	Status DiffStatus `json:"status"`
	Text   string     `json:"text"`
}

// Display returns the diff text or the marker for its status
func (d *SectionDiff) Display() string {
	switch d.Status {
	case StatusUnchanged:
		return NoChangesMarker
	case StatusMissing:
		return NotCollectedMarker
	default:
		return d.Text
	}
}

// ChangeReport is the structured result of one "after" run
type ChangeReport struct {
	Version   string
	Session   string
	Generated time.Time
	Sections  []*SectionDiff
}

// Changed returns the number of sections with changes
func (r *ChangeReport) Changed() int {
	n := 0
	for _, s := range r.Sections {
		if s.Status == StatusChanged {
			n++
		}
	}
	return n
}
