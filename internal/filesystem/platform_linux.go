//go:build linux

package filesystem

import (
	"os"
	"strconv"
	"syscall"
	"time"
)

// getChangeTime gets the change time from FileInfo (Linux)
func getChangeTime(info os.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	// Use ctime (change time)
	return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}

// getOwnerIDs returns uid and gid as decimal strings
func getOwnerIDs(info os.FileInfo) (uid, gid string, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", "", false
	}
	return strconv.FormatUint(uint64(stat.Uid), 10), strconv.FormatUint(uint64(stat.Gid), 10), true
}
