package models

// HashStatus tags the outcome of a content hash for one record
type HashStatus int

const (
	// HashNotRequested means the record was never dispatched for hashing
	HashNotRequested HashStatus = iota
	// HashPresent means Value holds the hex digest
	HashPresent
	// HashFailed means hashing was attempted and Err holds the cause
	HashFailed
)

// String returns the status name
func (s HashStatus) String() string {
	switch s {
	case HashPresent:
		return "present"
	case HashFailed:
		return "failed"
	default:
		return "not_requested"
	}
}

// HashResult carries either a digest or an explicit absence
type HashResult struct {
	Status HashStatus
	Value  string
	Err    error
}

// Get returns the digest and whether it is present
func (h HashResult) Get() (string, bool) {
	if h.Status != HashPresent {
		return "", false
	}
	return h.Value, true
}

// FileRecord is the metadata of one scanned filesystem entry
type FileRecord struct {
	Path        string     // Absolute path
	ModTime     int64      // Modification time (unix seconds)
	ChangeTime  int64      // Inode change time (unix seconds)
	Owner       string     // Owner user name (or uid)
	Group       string     // Owner group name (or gid)
	Permissions string     // Symbolic mode, e.g. -rw-r--r--
	Size        int64      // Size in bytes
	IsDir       bool       // Is directory
	IsRegular   bool       // Is regular file
	IsText      bool       // Classified as text (regular files only)
	Hash        HashResult // Content hash (text files only)
}
