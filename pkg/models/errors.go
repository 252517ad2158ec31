package models

import "errors"

// Error kinds. Wrap them with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrConfiguration is fatal at startup: a required parameter is missing or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrScanAccess marks an entry that vanished or was denied during traversal.
	ErrScanAccess = errors.New("scan access error")

	// ErrHash marks an I/O failure while hashing file content.
	ErrHash = errors.New("hash error")

	// ErrExternalTool marks a collaborator (command, history store) that is
	// unavailable or failed.
	ErrExternalTool = errors.New("external tool error")

	// ErrCorruptSnapshot is fatal: the baseline needed for a comparison is missing.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)
