//go:build !linux

package filesystem

import (
	"os"
	"time"
)

// getChangeTime falls back to the modification time
func getChangeTime(info os.FileInfo) time.Time {
	return info.ModTime()
}

// getOwnerIDs is not supported outside Linux
func getOwnerIDs(info os.FileInfo) (uid, gid string, ok bool) {
	return "", "", false
}
