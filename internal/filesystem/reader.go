package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HashChunkSize is the read buffer used while hashing
const HashChunkSize = 64 * 1024

// HashFile streams a file through SHA-256 and returns the hex digest
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, HashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyFile copies a file from src to dst, creating parent directories
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return err
	}

	return destFile.Sync()
}

// FormatMode renders a mode the way ls -l does, e.g. -rw-r--r--, drwxrwxrwt
func FormatMode(mode os.FileMode) string {
	buf := []byte("----------")

	switch {
	case mode.IsDir():
		buf[0] = 'd'
	case mode&os.ModeSymlink != 0:
		buf[0] = 'l'
	case mode&os.ModeNamedPipe != 0:
		buf[0] = 'p'
	case mode&os.ModeSocket != 0:
		buf[0] = 's'
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		buf[0] = 'c'
	case mode&os.ModeDevice != 0:
		buf[0] = 'b'
	}

	const rwx = "rwxrwxrwx"
	perm := mode.Perm()
	for i := 0; i < 9; i++ {
		if perm&(1<<uint(8-i)) != 0 {
			buf[i+1] = rwx[i]
		}
	}

	special := func(pos int, set bool, withExec, withoutExec byte) {
		if !set {
			return
		}
		if buf[pos] == 'x' {
			buf[pos] = withExec
		} else {
			buf[pos] = withoutExec
		}
	}
	special(3, mode&os.ModeSetuid != 0, 's', 'S')
	special(6, mode&os.ModeSetgid != 0, 's', 'S')
	special(9, mode&os.ModeSticky != 0, 't', 'T')

	return string(buf)
}
